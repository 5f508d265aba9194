package server

import (
	"context"
	"net"
	"sync"

	"github.com/SentimensRG/ctx"
	log "github.com/lthibault/log/pkg"
	"github.com/lthibault/peerwire/pkg/peer"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ErrDropped is returned by Connect when the connection is dropped before its
// handshake completes.
var ErrDropped = errors.New("connection dropped")

// Dialer initiates outbound peer connections.  At most one live connection is
// kept per remote address; concurrent calls to Connect share it.
type Dialer struct {
	Transport peer.Dialer
	Logger    log.Logger

	// Options are applied to every initiated connection.
	Options []peer.Option

	init sync.Once
	sf   singleflight.Group
	mu   sync.Mutex
	cs   map[string]*peer.Conn
}

func (d *Dialer) setup() {
	d.init.Do(func() {
		d.cs = make(map[string]*peer.Conn)
		if d.Logger == nil {
			d.Logger = log.New(log.OptLevel(log.NullLevel))
		}
	})
}

// Connect to the peer listening at a.  Connect blocks until the handshake
// completes, the connection is dropped, or c expires.  Expiry of c does not
// drop the connection.
func (d *Dialer) Connect(c context.Context, a net.Addr) (*peer.Conn, error) {
	d.setup()

	v, err, _ := d.sf.Do(a.String(), func() (interface{}, error) {
		return d.getConn(a), nil
	})
	if err != nil {
		return nil, err
	}

	conn := v.(*peer.Conn)

	select {
	case <-conn.Ready():
	case <-c.Done():
		return nil, c.Err()
	}

	if conn.State() != peer.Active {
		return nil, errors.Wrap(ErrDropped, a.String())
	}

	return conn, nil
}

func (d *Dialer) getConn(a net.Addr) *peer.Conn {
	key := a.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	if conn, ok := d.cs[key]; ok && conn.State() != peer.Closing {
		return conn
	}

	// slow path
	opt := append([]peer.Option{peer.OptLogger(d.Logger)}, d.Options...)
	conn := peer.Initiate(d.Transport, a, opt...)
	d.cs[key] = conn

	ctx.Defer(conn.Context(), d.gc(key, conn))
	return conn
}

func (d *Dialer) gc(key string, conn *peer.Conn) func() {
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.cs[key] == conn {
			delete(d.cs, key)
		}
	}
}

// Conns returns the live outbound connections
func (d *Dialer) Conns() []*peer.Conn {
	d.setup()

	d.mu.Lock()
	defer d.mu.Unlock()

	cs := make([]*peer.Conn, 0, len(d.cs))
	for _, conn := range d.cs {
		cs = append(cs, conn)
	}

	return cs
}

// Close drops every outbound connection
func (d *Dialer) Close() error {
	for _, conn := range d.Conns() {
		conn.Drop()
	}

	return nil
}
