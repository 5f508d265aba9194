package inproc

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
)

type listener struct {
	o       sync.Once
	cq      chan struct{}
	ch      chan net.Conn
	a       Addr
	release func()
}

func newListener(a Addr, gc func()) *listener {
	return &listener{
		a:       a,
		ch:      make(chan net.Conn),
		cq:      make(chan struct{}),
		release: gc,
	}
}

func (l *listener) Addr() net.Addr { return l.a }

func (l *listener) Close() (err error) {
	err = errors.New("already closed")

	l.o.Do(func() {
		close(l.cq)
		l.release()
		err = nil
	})

	return
}

func (l *listener) Accept() (net.Conn, error) {
	select {
	case <-l.cq:
		return nil, errors.New("closed")
	case conn := <-l.ch:
		return conn, nil
	}
}

func (l *listener) connect(c context.Context, conn net.Conn) error {
	select {
	case <-c.Done():
		return c.Err()
	case <-l.cq:
		return errors.New("inproc: connection refused")
	case l.ch <- conn:
		return nil
	}
}
