package peer

import (
	"io"
	"sync"
)

// writeQueue serializes frames onto a stream.  At most one write is in flight;
// frames are written in the order they were pushed.  Nothing is written until
// start is called.
type writeQueue struct {
	mu   sync.Mutex
	w    io.Writer
	q    [][]byte
	busy bool
	idle []func()

	closed func() bool
	done   func(n int)
	fail   func(error)
}

func (q *writeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.q)
}

// push a frame to the back of the queue.
func (q *writeQueue) push(b []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.q = append(q.q, b)
	q.kick()
}

// start writing to w.  Frames in head are written before anything already
// queued.
func (q *writeQueue) start(w io.Writer, head ...[]byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.w = w
	q.q = append(head, q.q...)
	q.kick()
}

// onIdle calls f once the queue is empty and nothing is in flight.
func (q *writeQueue) onIdle(f func()) {
	q.mu.Lock()
	if !q.busy && len(q.q) == 0 {
		q.mu.Unlock()
		f()
		return
	}

	q.idle = append(q.idle, f)
	q.mu.Unlock()
}

// kick starts the writer if it is not running.  Caller must hold mu.
func (q *writeQueue) kick() {
	if q.w == nil || q.busy || len(q.q) == 0 {
		return
	}

	q.busy = true
	go q.flush(q.w)
}

func (q *writeQueue) flush(w io.Writer) {
	for {
		q.mu.Lock()
		b := q.q[0]
		q.mu.Unlock()

		_, err := w.Write(b)

		switch {
		case q.closed():
			q.drain()
			return
		case err != nil:
			q.drain()
			q.fail(err)
			return
		}

		q.done(len(b))

		q.mu.Lock()
		q.q[0] = nil
		q.q = q.q[1:]
		if len(q.q) == 0 {
			q.busy = false
			idle := q.idle
			q.idle = nil
			q.mu.Unlock()

			for _, f := range idle {
				f()
			}
			return
		}
		q.mu.Unlock()
	}
}

// drain discards everything and stops the writer.
func (q *writeQueue) drain() {
	q.mu.Lock()
	q.q = nil
	q.busy = false
	idle := q.idle
	q.idle = nil
	q.mu.Unlock()

	for _, f := range idle {
		f()
	}
}
