// Package inproc transports peer connections within a single process.  It is
// used by tests and examples.
package inproc

import (
	"context"
	"net"

	"github.com/lthibault/peerwire/pkg/transport/generic"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// Network name for in-process addresses
const Network = "inproc"

// Addr is a path in a Namespace
type Addr string

// Network satisfies net.Addr
func (Addr) Network() string  { return Network }
func (a Addr) String() string { return string(a) }

type conn struct {
	net.Conn
	local, remote Addr
}

func (c conn) LocalAddr() net.Addr  { return c.local }
func (c conn) RemoteAddr() net.Addr { return c.remote }

// dialer announces a fixed local address, or a fresh ephemeral one per dial.
type dialer struct {
	ns       *Namespace
	dialback Addr
}

func (d dialer) DialContext(c context.Context, network, address string) (net.Conn, error) {
	if network != Network {
		return nil, errors.Errorf("inproc: invalid network %s", network)
	}

	local := d.dialback
	if local == "" {
		local = Addr("/ephemeral/" + uuid.NewV4().String())
	}

	return d.ns.dial(c, local, address)
}

// Transport bytes around the process
type Transport struct {
	generic.Transport
	ns       *Namespace
	dialback Addr
}

// New in-process Transport
func New(opt ...Option) (t Transport) {
	t.Transport = generic.New()
	t.ns = DefaultNamespace

	for _, fn := range opt {
		fn(&t)
	}

	t.Transport.NetListener = t.ns
	t.Transport.NetDialer = dialer{ns: t.ns, dialback: t.dialback}
	return t
}
