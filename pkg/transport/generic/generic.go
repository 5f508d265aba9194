package generic

import (
	"context"
	"net"
	"sync"

	"github.com/SentimensRG/ctx"
	"github.com/hashicorp/yamux"
	overlay "github.com/lthibault/peerwire/pkg"
	"github.com/pkg/errors"
)

type accepted struct {
	conn net.Conn
	err  error
}

type listener struct {
	net.Listener
	mux MuxAdapter

	ch   chan accepted
	cq   chan struct{}
	once sync.Once
}

func newListener(l net.Listener, mux MuxAdapter) *listener {
	ln := &listener{
		Listener: l,
		mux:      mux,
		ch:       make(chan accepted),
		cq:       make(chan struct{}),
	}

	go ln.serve()
	return ln
}

func (l *listener) Close() (err error) {
	err = errors.New("already closed")
	l.once.Do(func() {
		close(l.cq)
		err = l.Listener.Close()
	})
	return
}

func (l *listener) Accept(c context.Context) (net.Conn, error) {
	select {
	case a := <-l.ch:
		return a.conn, a.err
	case <-l.cq:
		return nil, errors.New("listener closed")
	case <-c.Done():
		return nil, c.Err()
	}
}

func (l *listener) serve() {
	for {
		raw, err := l.Listener.Accept()
		if err != nil {
			if !l.push(accepted{err: errors.Wrap(err, "listener")}) || !temporary(err) {
				return
			}
			continue
		}

		if l.mux == nil {
			if !l.push(accepted{conn: raw}) {
				raw.Close()
				return
			}
			continue
		}

		sess, err := l.mux.AdaptServer(raw)
		if err != nil {
			raw.Close()
			if !l.push(accepted{err: errors.Wrap(err, "mux")}) {
				return
			}
			continue
		}

		go l.serveSession(sess)
	}
}

func (l *listener) serveSession(sess Session) {
	ctx.Defer(ctx.C(l.cq), func() { sess.Close() })

	for {
		s, err := sess.Accept()
		if err != nil {
			return
		}

		if !l.push(accepted{conn: s}) {
			s.Close()
			return
		}
	}
}

func (l *listener) push(a accepted) bool {
	select {
	case l.ch <- a:
		return true
	case <-l.cq:
		return false
	}
}

func temporary(err error) bool {
	ne, ok := errors.Cause(err).(net.Error)
	return ok && ne.Temporary()
}

// sessions caches one multiplexed session per remote address.
type sessions struct {
	mu sync.Mutex
	m  map[string]Session
}

func (ss *sessions) get(key string) (Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	s, ok := ss.m[key]
	return s, ok
}

func (ss *sessions) put(key string, s Session) Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if prev, ok := ss.m[key]; ok && !closed(prev) {
		s.Close()
		return prev
	}

	ss.m[key] = s
	ctx.Defer(ctx.C(s.CloseChan()), func() { ss.del(key, s) })
	return s
}

func closed(s Session) bool {
	select {
	case <-s.CloseChan():
		return true
	default:
		return false
	}
}

func (ss *sessions) del(key string, s Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.m[key] == s {
		delete(ss.m, key)
	}
}

// Transport for any stream-oriented network.  If a MuxAdapter is set, peer
// connections to the same remote address share a single session.
type Transport struct {
	MuxAdapter
	NetListener
	NetDialer

	ss *sessions
}

// Listen Generic
func (t Transport) Listen(c context.Context, a net.Addr) (overlay.Listener, error) {
	l, err := t.NetListener.Listen(c, a.Network(), a.String())
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	return newListener(l, t.MuxAdapter), nil
}

// Dial Generic
func (t Transport) Dial(c context.Context, a net.Addr) (net.Conn, error) {
	if t.MuxAdapter == nil {
		conn, err := t.NetDialer.DialContext(c, a.Network(), a.String())
		return conn, errors.Wrap(err, "dial")
	}

	key := a.String()
	if sess, ok := t.ss.get(key); ok {
		if s, err := sess.Open(); err == nil {
			return s, nil
		}
		sess.Close()
		t.ss.del(key, sess)
	}

	raw, err := t.NetDialer.DialContext(c, a.Network(), a.String())
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	sess, err := t.AdaptClient(raw)
	if err != nil {
		raw.Close()
		return nil, err
	}

	s, err := t.ss.put(key, sess).Open()
	return s, errors.Wrap(err, "open stream")
}

// MuxConfig is a MuxAdapter that uses github.com/hashicorp/yamux
type MuxConfig struct{ *yamux.Config }

// AdaptServer is called by the listener
func (c MuxConfig) AdaptServer(conn net.Conn) (Session, error) {
	sess, err := yamux.Server(conn, c.Config)
	if err != nil {
		return nil, errors.Wrap(err, "yamux")
	}
	return sess, nil
}

// AdaptClient is called by the dialer
func (c MuxConfig) AdaptClient(conn net.Conn) (Session, error) {
	sess, err := yamux.Client(conn, c.Config)
	if err != nil {
		return nil, errors.Wrap(err, "yamux")
	}
	return sess, nil
}

// New Generic Transport.  Connections are not multiplexed unless OptMuxAdapter
// is passed.
func New(opt ...Option) (t Transport) {
	t.ss = &sessions{m: make(map[string]Session)}
	t.NetDialer = new(net.Dialer)
	t.NetListener = new(net.ListenConfig)

	for _, fn := range opt {
		fn(&t)
	}

	return t
}
