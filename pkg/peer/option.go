package peer

import (
	"time"

	log "github.com/lthibault/log/pkg"
	"github.com/lthibault/peerwire/pkg/directory"
	"github.com/lthibault/peerwire/pkg/frame"
	"github.com/lthibault/peerwire/pkg/loop"
	"github.com/lthibault/peerwire/pkg/metrics"
)

const (
	// DefaultHandshakeTimeout bounds the wait for an inbound peer's handshake
	DefaultHandshakeTimeout = time.Millisecond * 2000

	// DefaultLinger bounds how long a rejected peer's final writes may take
	DefaultLinger = time.Second

	directoryTimeout = time.Second * 5
)

// Option for Conn
type Option func(*Conn) (prev Option)

// OptLogger sets the logger
func OptLogger(l log.Logger) Option {
	return func(c *Conn) (prev Option) {
		prev = OptLogger(c.baseLog)
		c.baseLog = l
		return
	}
}

// OptMetrics sets the sink that traffic counters are reported to
func OptMetrics(s metrics.Sink) Option {
	return func(c *Conn) (prev Option) {
		prev = OptMetrics(c.extSink)
		c.extSink = s
		return
	}
}

// OptDirectory sets the peer directory.  A nil directory disables bookkeeping.
func OptDirectory(d directory.Directory) Option {
	return func(c *Conn) (prev Option) {
		prev = OptDirectory(c.dir)
		c.dir = d
		return
	}
}

// OptExecutor sets the scheduler that deferred work is posted to
func OptExecutor(e loop.Executor) Option {
	return func(c *Conn) (prev Option) {
		prev = OptExecutor(c.exec)
		c.exec = e
		return
	}
}

// OptHandler sets the message handler
func OptHandler(h Handler) Option {
	return func(c *Conn) (prev Option) {
		prev = OptHandler(c.handler)
		c.handler = h
		return
	}
}

// OptGreeter sets the hello/peer-list payload builder
func OptGreeter(g Greeter) Option {
	return func(c *Conn) (prev Option) {
		prev = OptGreeter(c.greeter)
		c.greeter = g
		return
	}
}

// OptRegistry sets the registry
func OptRegistry(r Registry) Option {
	return func(c *Conn) (prev Option) {
		prev = OptRegistry(c.registry)
		c.registry = r
		return
	}
}

// OptStateHandler sets a callback for lifecycle transitions
func OptStateHandler(h StateHandler) Option {
	return func(c *Conn) (prev Option) {
		prev = OptStateHandler(c.onState)
		c.onState = h
		return
	}
}

// OptMaxMessageSize bounds frame bodies in both directions
func OptMaxMessageSize(n int) Option {
	return func(c *Conn) (prev Option) {
		prev = OptMaxMessageSize(c.maxSize)
		c.maxSize = n
		return
	}
}

// OptHandshakeTimeout sets the inbound handshake deadline
func OptHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) (prev Option) {
		prev = OptHandshakeTimeout(c.handshakeTimeout)
		c.handshakeTimeout = d
		return
	}
}

// OptLinger bounds the flush of the peer list sent to a peer that was not admitted
func OptLinger(d time.Duration) Option {
	return func(c *Conn) (prev Option) {
		prev = OptLinger(c.linger)
		c.linger = d
		return
	}
}

// OptClock sets the time source used for directory records
func OptClock(now func() time.Time) Option {
	return func(c *Conn) (prev Option) {
		prev = OptClock(c.now)
		c.now = now
		return
	}
}

// OptBackoff sets the retry schedule applied to failed outbound connections
func OptBackoff(b directory.Backoff) Option {
	return func(c *Conn) (prev Option) {
		prev = OptBackoff(c.backoff)
		c.backoff = b
		return
	}
}

// OptRecordMarking sets the reserved header bit on outgoing frames
func OptRecordMarking(on bool) Option {
	return func(c *Conn) (prev Option) {
		prev = OptRecordMarking(c.recordMarking)
		c.recordMarking = on
		return
	}
}

func defaults() []Option {
	return []Option{
		OptLogger(log.New(log.OptLevel(log.NullLevel))),
		OptMetrics(metrics.Discard),
		OptExecutor(loop.Go),
		OptHandler(nopHandler{}),
		OptGreeter(nopGreeter{}),
		OptRegistry(nopRegistry{}),
		OptMaxMessageSize(frame.MaxMessageSize),
		OptHandshakeTimeout(DefaultHandshakeTimeout),
		OptLinger(DefaultLinger),
		OptClock(time.Now),
		OptBackoff(directory.DefaultBackoff),
	}
}
