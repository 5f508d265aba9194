package tcp

import (
	"net"
	"time"

	"github.com/lthibault/peerwire/pkg/transport/generic"
)

// Option for TCP transport
type Option func(*Transport) (prev Option)

// OptDialer replaces the dialer.  It overrides OptDialTimeout and the dial
// side of OptKeepAlive.
func OptDialer(d *net.Dialer) Option {
	return func(t *Transport) (prev Option) {
		prev = OptDialer(t.dialer())
		OptGeneric(generic.OptDialer(d))(t)
		return
	}
}

// OptDialTimeout bounds connection establishment
func OptDialTimeout(d time.Duration) Option {
	return func(t *Transport) (prev Option) {
		dl := *t.dialer()
		prev = OptDialTimeout(dl.Timeout)
		dl.Timeout = d
		t.NetDialer = &dl
		return
	}
}

// OptKeepAlive sets the keep-alive period on both dialed and accepted
// connections.  A negative period disables keep-alives.
func OptKeepAlive(d time.Duration) Option {
	return func(t *Transport) (prev Option) {
		dl, lc := *t.dialer(), *t.listenConfig()
		prev = OptKeepAlive(dl.KeepAlive)
		dl.KeepAlive, lc.KeepAlive = d, d
		t.NetDialer, t.NetListener = &dl, &lc
		return
	}
}

// OptGeneric sets an option on the underlying generic transport
func OptGeneric(opt generic.Option) Option {
	return func(t *Transport) Option {
		return OptGeneric(opt(&t.Transport))
	}
}

func (t *Transport) dialer() *net.Dialer {
	if d, ok := t.NetDialer.(*net.Dialer); ok {
		return d
	}
	return new(net.Dialer)
}

func (t *Transport) listenConfig() *net.ListenConfig {
	if lc, ok := t.NetListener.(*net.ListenConfig); ok {
		return lc
	}
	return new(net.ListenConfig)
}
