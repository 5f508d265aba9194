package inproc

import (
	"net"

	"github.com/lthibault/peerwire/pkg/transport/generic"
	"github.com/pkg/errors"
)

// Option for Transport
type Option func(*Transport) (prev Option)

// OptDialback sets the dialback addr for a transport.  This is useful when
// dialers are also listening, and need to announce the listen address.
func OptDialback(a net.Addr) Option {
	if a.Network() != Network {
		panic(errors.Errorf("invalid network %s", a.Network()))
	}

	return func(t *Transport) (prev Option) {
		prev = OptDialback(t.dialback)
		t.dialback = Addr(a.String())
		return
	}
}

// OptNamespace sets the namespace for the transport instance
func OptNamespace(ns *Namespace) Option {
	return func(t *Transport) (prev Option) {
		prev = OptNamespace(t.ns)
		t.ns = ns
		return
	}
}

// OptGeneric sets an option on the underlying generic transport
func OptGeneric(opt generic.Option) Option {
	return func(t *Transport) Option {
		return OptGeneric(opt(&t.Transport))
	}
}
