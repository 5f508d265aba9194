// Package overlay defines the stream transports that peer connections run over.
package overlay

import (
	"context"
	"net"
)

// Transport is a means by which to connect to and listen for connections from
// other peers.  Each net.Conn it yields carries exactly one peer connection.
type Transport interface {
	Listen(context.Context, net.Addr) (Listener, error)
	Dial(context.Context, net.Addr) (net.Conn, error)
}

// Listener can listen for incoming connections
type Listener interface {
	Addr() net.Addr
	Close() error
	Accept(context.Context) (net.Conn, error)
}
