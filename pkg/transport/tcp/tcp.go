// Package tcp carries peer connections over TCP.
package tcp

import (
	"context"
	"net"
	"time"

	overlay "github.com/lthibault/peerwire/pkg"
	"github.com/lthibault/peerwire/pkg/transport/generic"
	"github.com/pkg/errors"
)

const (
	// DefaultDialTimeout bounds connection establishment to a peer
	DefaultDialTimeout = time.Second * 10

	// DefaultKeepAlive is the keep-alive period for idle peer connections
	DefaultKeepAlive = time.Second * 30
)

// Transport over TCP
type Transport struct{ generic.Transport }

// Listen for peers on a.  Port 0 binds an ephemeral port.
func (t Transport) Listen(c context.Context, a net.Addr) (overlay.Listener, error) {
	if err := checkNetwork(a); err != nil {
		return nil, err
	}

	return t.Transport.Listen(c, a)
}

// Dial the peer listening at a.  Peers are identified by their listening port,
// so a must carry one.
func (t Transport) Dial(c context.Context, a net.Addr) (net.Conn, error) {
	if err := checkNetwork(a); err != nil {
		return nil, err
	}

	if port(a) == 0 {
		return nil, errors.Errorf("tcp: no listening port in %s", a)
	}

	return t.Transport.Dial(c, a)
}

func checkNetwork(a net.Addr) error {
	switch a.Network() {
	case "tcp", "tcp4", "tcp6":
		return nil
	}

	return errors.Errorf("tcp: invalid network %s", a.Network())
}

func port(a net.Addr) int {
	if ta, ok := a.(*net.TCPAddr); ok {
		return ta.Port
	}

	_, p, err := net.SplitHostPort(a.String())
	if err != nil {
		return 0
	}

	n, _ := net.LookupPort("tcp", p)
	return n
}

// New TCP Transport.  Dials time out after DefaultDialTimeout and both sides
// send keep-alives every DefaultKeepAlive.
func New(opt ...Option) (t Transport) {
	t.Transport = generic.New()
	t.Transport.NetDialer = &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultKeepAlive}
	t.Transport.NetListener = &net.ListenConfig{KeepAlive: DefaultKeepAlive}

	for _, fn := range opt {
		fn(&t)
	}

	return t
}
