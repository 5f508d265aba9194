// Package metrics counts connection traffic.
package metrics

import (
	"expvar"
	"strconv"
	"sync/atomic"
)

// Sink receives traffic counters from connections.  Implementations must be safe
// for concurrent use; callers never lock.
type Sink interface {
	MessageRead()
	MessageWritten()
	BytesRead(n int)
	BytesWritten(n int)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) MessageRead()     {}
func (discard) MessageWritten()  {}
func (discard) BytesRead(int)    {}
func (discard) BytesWritten(int) {}

var seq atomic.Int64

// Counters is a lock-free Sink.
type Counters struct {
	messagesRead, messagesWritten atomic.Int64
	bytesRead, bytesWritten       atomic.Int64
}

// New Counters, unpublished.
func New() *Counters { return new(Counters) }

// Publish a new set of counters to expvar under "<prefix>.<seq>.".  The sequence
// number keeps names unique when several nodes share a process.
func Publish(prefix string) *Counters {
	c := New()
	p := prefix + "." + strconv.FormatInt(seq.Add(1), 10) + "."

	expvar.Publish(p+"message.read", counter(&c.messagesRead))
	expvar.Publish(p+"message.write", counter(&c.messagesWritten))
	expvar.Publish(p+"byte.read", counter(&c.bytesRead))
	expvar.Publish(p+"byte.write", counter(&c.bytesWritten))

	return c
}

func counter(v *atomic.Int64) expvar.Var {
	return expvar.Func(func() any { return v.Load() })
}

// MessageRead increments the read message counter
func (c *Counters) MessageRead() { c.messagesRead.Add(1) }

// MessageWritten increments the written message counter
func (c *Counters) MessageWritten() { c.messagesWritten.Add(1) }

// BytesRead adds n to the read byte counter
func (c *Counters) BytesRead(n int) { c.bytesRead.Add(int64(n)) }

// BytesWritten adds n to the written byte counter
func (c *Counters) BytesWritten(n int) { c.bytesWritten.Add(int64(n)) }

// Snapshot of the current values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		MessagesRead:    c.messagesRead.Load(),
		MessagesWritten: c.messagesWritten.Load(),
		BytesRead:       c.bytesRead.Load(),
		BytesWritten:    c.bytesWritten.Load(),
	}
}

// Snapshot is a point-in-time copy of a Counters
type Snapshot struct {
	MessagesRead    int64 `json:"messages_read"`
	MessagesWritten int64 `json:"messages_written"`
	BytesRead       int64 `json:"bytes_read"`
	BytesWritten    int64 `json:"bytes_written"`
}

// Tee fans counters out to every sink.
type Tee []Sink

// MessageRead on every sink
func (t Tee) MessageRead() {
	for _, s := range t {
		s.MessageRead()
	}
}

// MessageWritten on every sink
func (t Tee) MessageWritten() {
	for _, s := range t {
		s.MessageWritten()
	}
}

// BytesRead on every sink
func (t Tee) BytesRead(n int) {
	for _, s := range t {
		s.BytesRead(n)
	}
}

// BytesWritten on every sink
func (t Tee) BytesWritten(n int) {
	for _, s := range t {
		s.BytesWritten(n)
	}
}
