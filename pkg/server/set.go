package server

import (
	"sync"

	overlay "github.com/lthibault/peerwire/pkg"
	"github.com/lthibault/peerwire/pkg/peer"
	"golang.org/x/sync/errgroup"
)

type closeOnceListener struct {
	sync.Once
	overlay.Listener
	err error
}

func (l *closeOnceListener) Close() error {
	l.Do(func() { l.err = l.Listener.Close() })
	return l.err
}

type listenerSet struct {
	mu     sync.Locker
	ls     map[*overlay.Listener]struct{}
	closed bool
}

func (s *listenerSet) Add(l *overlay.Listener) (active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.ls[l] = struct{}{}
		active = true
	}

	return
}

func (s *listenerSet) Del(l *overlay.Listener) {
	s.mu.Lock()
	delete(s.ls, l)
	s.mu.Unlock()
}

func (s *listenerSet) CloseAll() error {
	s.mu.Lock()

	s.closed = true

	var g errgroup.Group
	for l := range s.ls {
		g.Go((*l).Close)
	}

	s.mu.Unlock()
	return g.Wait()
}

type connSet struct {
	mu     sync.Mutex
	cs     map[*peer.Conn]struct{}
	closed bool
}

func (c *connSet) quiescent() bool { return c.Len() == 0 }

func (c *connSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cs)
}

func (c *connSet) Add(p *peer.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	c.cs[p] = struct{}{}
	return true
}

func (c *connSet) Del(p *peer.Conn) {
	c.mu.Lock()
	delete(c.cs, p)
	c.mu.Unlock()
}

func (c *connSet) DropAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for p := range c.cs {
		p.Drop()
	}
}
