package server

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/lthibault/peerwire/pkg/peer"
	"github.com/lthibault/peerwire/pkg/transport/inproc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type greeter struct{}

func (greeter) Hello(*peer.Conn) []byte { return []byte("hello") }
func (greeter) Peers(*peer.Conn) []byte { return nil }

func opts() []peer.Option { return []peer.Option{peer.OptGreeter(greeter{})} }

func TestServer(t *testing.T) {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tp := inproc.New(inproc.OptNamespace(inproc.NewNamespace()))

	l, err := tp.Listen(c, inproc.Addr("/server"))
	require.NoError(t, err)

	s := &Server{
		Limiter: rate.NewLimiter(rate.Limit(1000), 1),
		Options: opts(),
	}

	errs := make(chan error, 1)
	go func() { errs <- s.Serve(l) }()

	d := &Dialer{Transport: tp, Options: opts()}

	conn, err := d.Connect(c, inproc.Addr("/server"))
	require.NoError(t, err)
	assert.Equal(t, peer.Active, conn.State())
	assert.Equal(t, peer.Outbound, conn.Direction())

	assert.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, time.Millisecond)

	t.Run("Reuse", func(t *testing.T) {
		again, err := d.Connect(c, inproc.Addr("/server"))
		require.NoError(t, err)
		assert.Same(t, conn, again)
	})

	t.Run("Concurrent", func(t *testing.T) {
		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				got, err := d.Connect(c, inproc.Addr("/server"))
				if err != nil {
					return err
				}

				if got != conn {
					return errors.New("connection not shared")
				}
				return nil
			})
		}
		assert.NoError(t, g.Wait())
		assert.Len(t, d.Conns(), 1)
	})

	t.Run("Close", func(t *testing.T) {
		assert.NoError(t, s.Close())
		assert.Equal(t, ErrServerClosed, <-errs)

		assert.Eventually(t, func() bool {
			return conn.State() == peer.Closing
		}, time.Second, time.Millisecond, "remote drop should propagate")
		assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, time.Millisecond)
		assert.Eventually(t, func() bool { return len(d.Conns()) == 0 }, time.Second, time.Millisecond)

		assert.Equal(t, ErrServerClosed, s.Close())
		assert.Equal(t, ErrServerClosed, s.Serve(l))
	})
}

func TestConnectRefused(t *testing.T) {
	tp := inproc.New(inproc.OptNamespace(inproc.NewNamespace()))
	d := &Dialer{Transport: tp}

	_, err := d.Connect(context.Background(), inproc.Addr("/nobody"))
	assert.Equal(t, ErrDropped, errors.Cause(err))
}

func TestConnectContext(t *testing.T) {
	tp := inproc.New(inproc.OptNamespace(inproc.NewNamespace()))

	// nobody accepts, so the handshake never completes
	l, err := tp.Listen(context.Background(), inproc.Addr("/silent"))
	require.NoError(t, err)
	defer l.Close()

	d := &Dialer{Transport: tp}
	defer d.Close()

	c, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
	defer cancel()

	_, err = d.Connect(c, inproc.Addr("/silent"))
	assert.Equal(t, context.DeadlineExceeded, err)
}

type tempErr struct{}

func (tempErr) Error() string   { return "temporary" }
func (tempErr) Timeout() bool   { return false }
func (tempErr) Temporary() bool { return true }

type mockListener struct {
	n   atomic.Int32
	err error
}

func (*mockListener) Addr() net.Addr { return inproc.Addr("/mock") }
func (*mockListener) Close() error   { return nil }

func (l *mockListener) Accept(c context.Context) (net.Conn, error) {
	if l.n.Add(1) <= 3 {
		return nil, l.err
	}

	<-c.Done()
	return nil, c.Err()
}

func TestAcceptErrors(t *testing.T) {
	t.Run("Temporary", func(t *testing.T) {
		l := &mockListener{err: tempErr{}}
		s := &Server{Backoff: backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond}}

		errs := make(chan error, 1)
		go func() { errs <- s.Serve(l) }()

		assert.Eventually(t, func() bool {
			return l.n.Load() > 3
		}, time.Second, time.Millisecond, "should retry temporary errors")

		assert.NoError(t, s.Close())
		assert.Equal(t, ErrServerClosed, <-errs)
	})

	t.Run("Permanent", func(t *testing.T) {
		l := &mockListener{err: errors.New("boom")}
		s := &Server{}

		assert.EqualError(t, s.Serve(l), "boom")
		assert.Equal(t, int32(1), l.n.Load())
	})
}

func TestShutdown(t *testing.T) {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tp := inproc.New(inproc.OptNamespace(inproc.NewNamespace()))

	l, err := tp.Listen(c, inproc.Addr("/server"))
	require.NoError(t, err)

	s := &Server{Options: opts()}
	errs := make(chan error, 1)
	go func() { errs <- s.Serve(l) }()

	d := &Dialer{Transport: tp, Options: opts()}
	conn, err := d.Connect(c, inproc.Addr("/server"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, time.Millisecond)

	t.Run("Busy", func(t *testing.T) {
		sc, cancel := context.WithTimeout(c, time.Millisecond*100)
		defer cancel()

		assert.Equal(t, context.DeadlineExceeded, s.Shutdown(sc))
		assert.Equal(t, ErrServerClosed, <-errs)
		assert.Equal(t, peer.Active, conn.State(), "shutdown must not interrupt connections")
	})

	t.Run("Quiescent", func(t *testing.T) {
		conn.Drop()
		assert.NoError(t, s.Shutdown(c))
		assert.Zero(t, s.Len())
	})
}
