package generic

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type mockListener struct {
	conns chan net.Conn
	err   error
}

func newMockListener(err error, conns ...net.Conn) mockListener {
	ch := make(chan net.Conn, len(conns))
	for _, c := range conns {
		ch <- c
	}
	close(ch)

	return mockListener{conns: ch, err: err}
}

func (mockListener) Addr() net.Addr { return nil }
func (mockListener) Close() error   { return nil }

func (l mockListener) Accept() (net.Conn, error) {
	if c, ok := <-l.conns; ok {
		return c, nil
	}

	return nil, l.err
}

func TestListener(t *testing.T) {
	t.Run("Accept", func(t *testing.T) {
		t.Run("Succeed", func(t *testing.T) {
			conn, _ := net.Pipe()
			l := newListener(newMockListener(errors.New("done"), conn), nil)
			defer l.Close()

			got, err := l.Accept(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, conn, got)
		})

		t.Run("Fail", func(t *testing.T) {
			t.Run("ListenError", func(t *testing.T) {
				l := newListener(newMockListener(errors.New("boom")), nil)
				defer l.Close()

				_, err := l.Accept(context.Background())
				assert.EqualError(t, err, "listener: boom")
			})

			t.Run("MuxError", func(t *testing.T) {
				conn, _ := net.Pipe()
				l := newListener(
					newMockListener(errors.New("done"), conn),
					MuxConfig{Config: new(yamux.Config)})
				defer l.Close()

				_, err := l.Accept(context.Background())
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "mux")
			})

			t.Run("Context", func(t *testing.T) {
				l := newListener(newMockListener(errors.New("boom")), nil)
				defer l.Close()

				c, cancel := context.WithCancel(context.Background())
				cancel()

				// either the context or the listener error wins, never a conn
				conn, err := l.Accept(c)
				assert.Nil(t, conn)
				assert.Error(t, err)
			})
		})
	})

	t.Run("Close", func(t *testing.T) {
		l := newListener(newMockListener(errors.New("boom")), nil)
		assert.NoError(t, l.Close())
		assert.Error(t, l.Close())

		_, err := l.Accept(context.Background())
		assert.Error(t, err)
	})
}

func TestMuxConfig(t *testing.T) {
	var mx MuxConfig
	dconn, lconn := net.Pipe()

	t.Run("ValidConfig", func(t *testing.T) {
		t.Run("AdaptClient", func(t *testing.T) {
			_, err := mx.AdaptClient(dconn)
			assert.NoError(t, err)
		})

		t.Run("AdaptServer", func(t *testing.T) {
			_, err := mx.AdaptServer(lconn)
			assert.NoError(t, err)
		})
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		mx.Config = new(yamux.Config)
		assert.Error( // sanity check
			t,
			yamux.VerifyConfig(mx.Config),
			"YAMUX config is valid. Subsequent tests will FAIL.",
		)

		t.Run("AdaptClient", func(t *testing.T) {
			_, err := mx.AdaptClient(dconn)
			assert.Error(t, err)
		})

		t.Run("AdaptServer", func(t *testing.T) {
			_, err := mx.AdaptServer(lconn)
			assert.Error(t, err)
		})
	})
}

func loopback() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func roundTrip(t *testing.T, dial, accept net.Conn, msg string) {
	t.Helper()

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.WriteString(dial, msg)
		return err
	})

	buf := make([]byte, len(msg))
	require.NoError(t, accept.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := io.ReadFull(accept, buf)
	require.NoError(t, err)
	require.NoError(t, g.Wait())
	assert.Equal(t, msg, string(buf))
}

func TestTransport(t *testing.T) {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("Raw", func(t *testing.T) {
		tp := New()

		l, err := tp.Listen(c, loopback())
		require.NoError(t, err)
		defer l.Close()

		d, err := tp.Dial(c, l.Addr())
		require.NoError(t, err)
		defer d.Close()

		a, err := l.Accept(c)
		require.NoError(t, err)
		defer a.Close()

		assert.IsType(t, new(net.TCPConn), d)
		roundTrip(t, d, a, "hello")
	})

	t.Run("Mux", func(t *testing.T) {
		tp := New(OptMuxAdapter(MuxConfig{}))

		l, err := tp.Listen(c, loopback())
		require.NoError(t, err)
		defer l.Close()

		d0, err := tp.Dial(c, l.Addr())
		require.NoError(t, err)
		defer d0.Close()

		d1, err := tp.Dial(c, l.Addr())
		require.NoError(t, err)
		defer d1.Close()

		a0, err := l.Accept(c)
		require.NoError(t, err)
		defer a0.Close()

		a1, err := l.Accept(c)
		require.NoError(t, err)
		defer a1.Close()

		roundTrip(t, d0, a0, "zero")
		roundTrip(t, d1, a1, "one")

		tp.ss.mu.Lock()
		assert.Len(t, tp.ss.m, 1, "streams should share a session")
		tp.ss.mu.Unlock()
	})

	t.Run("SessionGC", func(t *testing.T) {
		tp := New(OptMuxAdapter(MuxConfig{}))

		l, err := tp.Listen(c, loopback())
		require.NoError(t, err)

		d, err := tp.Dial(c, l.Addr())
		require.NoError(t, err)
		defer d.Close()

		sess, ok := tp.ss.get(l.Addr().String())
		require.True(t, ok)
		require.NoError(t, sess.Close())

		assert.Eventually(t, func() bool {
			_, ok := tp.ss.get(l.Addr().String())
			return !ok
		}, time.Second, time.Millisecond)

		l.Close()
	})
}

// refusingSession accepts a fixed number of Open calls, then refuses the rest
// as a session that received a go-away would.
type refusingSession struct {
	opens, limit int32

	once sync.Once
	cq   chan struct{}
}

func newRefusingSession(limit int32) *refusingSession {
	return &refusingSession{limit: limit, cq: make(chan struct{})}
}

func (s *refusingSession) Open() (net.Conn, error) {
	if atomic.AddInt32(&s.opens, 1) > s.limit {
		return nil, errors.New("remote end is not accepting connections")
	}

	conn, _ := net.Pipe()
	return conn, nil
}

func (s *refusingSession) Accept() (net.Conn, error) {
	<-s.cq
	return nil, errors.New("session closed")
}

func (s *refusingSession) Close() error {
	s.once.Do(func() { close(s.cq) })
	return nil
}

func (s *refusingSession) CloseChan() <-chan struct{} { return s.cq }

type sessionFactory struct {
	mu sync.Mutex
	ss []*refusingSession
}

func (f *sessionFactory) AdaptServer(net.Conn) (Session, error) {
	return nil, errors.New("not a server")
}

func (f *sessionFactory) AdaptClient(net.Conn) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := newRefusingSession(1)
	f.ss = append(f.ss, s)
	return s, nil
}

func (f *sessionFactory) made() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ss)
}

type pipeDialer struct{}

func (pipeDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	conn, _ := net.Pipe()
	return conn, nil
}

func TestSessionCache(t *testing.T) {
	t.Run("Redial", func(t *testing.T) {
		f := new(sessionFactory)
		tp := New(OptDialer(pipeDialer{}), OptMuxAdapter(f))

		for i := 1; i <= 3; i++ {
			conn, err := tp.Dial(context.Background(), loopback())
			require.NoError(t, err, "dial %d", i)
			conn.Close()

			assert.Equal(t, i, f.made(), "refused session must be replaced")
		}

		sess, ok := tp.ss.get(loopback().String())
		require.True(t, ok)
		assert.Equal(t, f.ss[2], sess)
	})

	t.Run("ReplaceClosed", func(t *testing.T) {
		ss := &sessions{m: make(map[string]Session)}

		dead := newRefusingSession(1)
		ss.m["peer"] = dead
		dead.Close()

		live := newRefusingSession(1)
		assert.Equal(t, Session(live), ss.put("peer", live))

		select {
		case <-live.CloseChan():
			t.Fatal("new session was closed")
		default:
		}
	})

	t.Run("KeepLive", func(t *testing.T) {
		ss := &sessions{m: make(map[string]Session)}

		first := newRefusingSession(1)
		ss.put("peer", first)

		second := newRefusingSession(1)
		assert.Equal(t, Session(first), ss.put("peer", second))
		assert.True(t, closed(second), "duplicate session is closed")
	})
}
