// Package server accepts and initiates peer connections over an overlay
// transport.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/SentimensRG/ctx"
	"github.com/jpillora/backoff"
	log "github.com/lthibault/log/pkg"
	overlay "github.com/lthibault/peerwire/pkg"
	"github.com/lthibault/peerwire/pkg/peer"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrServerClosed indicates that the server is no longer accepting connections.
	ErrServerClosed = errors.New("server closed")
)

// Server accepts inbound peer connections
type Server struct {
	Backoff backoff.Backoff
	Logger  log.Logger

	// Limiter bounds the rate at which connections are accepted.  Nil means
	// no limit.
	Limiter *rate.Limiter

	// Options are applied to every accepted connection.
	Options []peer.Option

	init sync.Once
	stop sync.Once
	mu   sync.Mutex
	cq   chan struct{}
	ls   *listenerSet
	cs   connSet
}

func (s *Server) setup() {
	s.init.Do(func() {
		s.cq = make(chan struct{})
		s.ls = &listenerSet{ls: make(map[*overlay.Listener]struct{}), mu: &s.mu}
		s.cs.cs = make(map[*peer.Conn]struct{})
		if s.Logger == nil {
			s.Logger = log.New(log.OptLevel(log.NullLevel))
		}
	})
}

// Serve peer connections.  Serve always returns a non-nil error and closes l.
func (s *Server) Serve(l overlay.Listener) error {
	s.setup()

	l = &closeOnceListener{Listener: l}
	defer l.Close()

	if !s.ls.Add(&l) {
		return ErrServerClosed
	}
	defer s.ls.Del(&l)

	c := ctx.AsContext(ctx.C(s.cq))
	b := s.Backoff

	for {
		if s.Limiter != nil {
			if err := s.Limiter.Wait(c); err != nil {
				return ErrServerClosed
			}
		}

		conn, e := l.Accept(c)
		if e != nil {
			select {
			case <-s.cq:
				return ErrServerClosed
			default:
			}

			if temporary(e) {
				s.Logger.WithError(e).
					WithField("addr", l.Addr()).
					WithField("retry", b.ForAttempt(b.Attempt())).
					Debug("failed to accept connection")
				time.Sleep(b.Duration())
				continue
			}
			return e
		}

		b.Reset()
		s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	opt := append([]peer.Option{peer.OptLogger(s.Logger)}, s.Options...)
	p := peer.Accept(conn, opt...)

	if !s.cs.Add(p) {
		p.Drop()
		return
	}

	ctx.Defer(p.Context(), func() { s.cs.Del(p) })
}

// Len is the number of live inbound connections
func (s *Server) Len() int {
	s.setup()
	return s.cs.Len()
}

// Close immediately, terminating all active overlay.Listeners and dropping all
// connections.  For graceful shutdown, use Shutdown.  Close returns
// ErrServerClosed if the server was already stopped.
func (s *Server) Close() error {
	s.setup()

	err := ErrServerClosed
	s.stop.Do(func() {
		close(s.cq)
		err = nil
	})

	s.ls.CloseAll()
	s.cs.DropAll()
	return err
}

// Shutdown gracefully shuts down the server without interrupting any active
// connections.  It returns once every connection has been dropped by its
// peer, or c expires.
func (s *Server) Shutdown(c context.Context) error {
	s.setup()

	s.stop.Do(func() { close(s.cq) })

	var g errgroup.Group
	g.Go(s.ls.CloseAll)
	g.Go(func() error {
		ticker := time.NewTicker(time.Millisecond * 50)
		defer ticker.Stop()

		for {
			select {
			case <-c.Done():
				return c.Err()
			case <-ticker.C:
				if s.cs.quiescent() {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

func temporary(err error) bool {
	ne, ok := errors.Cause(err).(net.Error)
	return ok && ne.Temporary()
}
