package peer

import (
	"context"
	"net"
)

// Dialer opens the stream underneath an outbound connection.
type Dialer interface {
	Dial(context.Context, net.Addr) (net.Conn, error)
}

// Handler receives decoded payloads.  The first payload on a connection is the
// handshake; returning an error rejects it.  A successful handshake reports the
// remote's declared listening port.
type Handler interface {
	OnHandshake(c *Conn, payload []byte) (port int, err error)
	OnMessage(c *Conn, payload []byte)
}

// Greeter builds the payloads a connection sends on its own initiative.  A nil
// payload is not sent.
type Greeter interface {
	Hello(*Conn) []byte
	Peers(*Conn) []byte
}

// Registry tracks the set of live connections and decides admission of inbound
// peers.  Dropped is called exactly once per connection.
type Registry interface {
	Accepting(*Conn) bool
	Activated(*Conn)
	Dropped(*Conn)
}

type nopHandler struct{}

func (nopHandler) OnHandshake(*Conn, []byte) (int, error) { return 0, nil }
func (nopHandler) OnMessage(*Conn, []byte)                 {}

type nopGreeter struct{}

func (nopGreeter) Hello(*Conn) []byte { return nil }
func (nopGreeter) Peers(*Conn) []byte { return nil }

type nopRegistry struct{}

func (nopRegistry) Accepting(*Conn) bool { return true }
func (nopRegistry) Activated(*Conn)      {}
func (nopRegistry) Dropped(*Conn)        {}
