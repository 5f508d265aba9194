// Package unix carries peer connections over Unix domain sockets.
package unix

import (
	"context"
	"net"
	"os"

	overlay "github.com/lthibault/peerwire/pkg"
	"github.com/lthibault/peerwire/pkg/transport/generic"
	"github.com/pkg/errors"
)

// Transport over Unix domain socket
type Transport struct {
	generic.Transport
	keepStale bool
}

// Listen on the socket path in a.  A socket file left behind by a node that
// exited without cleaning up is removed first, unless nothing answers on it.
func (t Transport) Listen(c context.Context, a net.Addr) (overlay.Listener, error) {
	if err := checkNetwork(a); err != nil {
		return nil, err
	}

	if !t.keepStale {
		if err := unlinkStale(c, t.NetDialer, a.String()); err != nil {
			return nil, err
		}
	}

	return t.Transport.Listen(c, a)
}

// Dial Unix
func (t Transport) Dial(c context.Context, a net.Addr) (net.Conn, error) {
	if err := checkNetwork(a); err != nil {
		return nil, err
	}

	return t.Transport.Dial(c, a)
}

func checkNetwork(a net.Addr) error {
	if a.Network() != "unix" {
		return errors.Errorf("unix: invalid network %s", a.Network())
	}
	return nil
}

// unlinkStale removes path if it is a socket that no listener answers on.
func unlinkStale(c context.Context, d generic.NetDialer, path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "unix: stat")
	}

	if fi.Mode()&os.ModeSocket == 0 {
		return errors.Errorf("unix: %s exists and is not a socket", path)
	}

	if conn, err := d.DialContext(c, "unix", path); err == nil {
		conn.Close()
		return errors.Errorf("unix: %s is in use", path)
	}

	return errors.Wrap(os.Remove(path), "unix: remove stale socket")
}

// New Unix Transport
func New(opt ...Option) (t Transport) {
	t.Transport = generic.New()

	for _, fn := range opt {
		fn(&t)
	}

	return t
}
