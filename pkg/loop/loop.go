// Package loop provides the process-wide scheduler onto which deferred
// connection work (teardown, timer expiry) is posted.
package loop

import (
	"context"
	"sync"

	"github.com/SentimensRG/ctx"
)

// Executor runs units of work asynchronously.  Post must not block and must not
// run f inline.
type Executor interface {
	Post(f func())
}

// ExecutorFunc is a type-adapter to allow the use of ordinary functions as Executors.
type ExecutorFunc func(func())

// Post calls e(f)
func (e ExecutorFunc) Post(f func()) { e(f) }

// Go runs each unit of work on its own goroutine.
var Go Executor = ExecutorFunc(func(f func()) { go f() })

// Loop is a FIFO executor drained by a single goroutine.  Units of work run
// sequentially in the order they were posted.
type Loop struct {
	mu     sync.Mutex
	q      []func()
	signal chan struct{}
	done   chan struct{}
	closed bool

	cq   chan struct{}
	once sync.Once
}

// New starts a Loop.  It runs until Stop is called or c expires.
func New(c context.Context) *Loop {
	l := &Loop{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		cq:     make(chan struct{}),
	}

	ctx.Defer(c, l.Stop)
	go l.run()

	return l
}

// Post f to the loop.  Work posted after the loop has stopped runs on a fresh
// goroutine so that it is never lost.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		go f()
		return
	}

	l.q = append(l.q, f)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Stop the loop after draining work that has already been posted.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.cq) })
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Context expires when the loop has exited.
func (l *Loop) Context() context.Context { return ctx.AsContext(ctx.C(l.done)) }

func (l *Loop) run() {
	defer close(l.done)

	for {
		for _, f := range l.take(false) {
			f()
		}

		select {
		case <-l.signal:
		case <-l.cq:
			for _, f := range l.take(true) {
				f()
			}
			return
		}
	}
}

func (l *Loop) take(closing bool) (batch []func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch, l.q = l.q, nil
	l.closed = l.closed || closing
	return
}
