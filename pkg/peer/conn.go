// Package peer implements the transport side of a single overlay connection:
// framing, the write queue, the read pump, the handshake deadline and teardown.
package peer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/lthibault/log/pkg"
	"github.com/lthibault/peerwire/pkg/directory"
	"github.com/lthibault/peerwire/pkg/frame"
	"github.com/lthibault/peerwire/pkg/loop"
	"github.com/lthibault/peerwire/pkg/metrics"
	uuid "github.com/satori/go.uuid"
)

// Conn is one framed connection to a remote peer.  All methods are safe for
// concurrent use.
type Conn struct {
	id     uuid.UUID
	way    Direction
	host   string
	port   atomic.Int64
	state  atomic.Int32
	active atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	sock net.Conn

	q        writeQueue
	deadline *deadline
	torn     sync.Once

	ready     chan struct{}
	readyOnce sync.Once

	stats *metrics.Counters
	meter metrics.Sink
	log   log.Logger

	baseLog          log.Logger
	extSink          metrics.Sink
	dir              directory.Directory
	exec             loop.Executor
	handler          Handler
	greeter          Greeter
	registry         Registry
	onState          StateHandler
	maxSize          int
	handshakeTimeout time.Duration
	linger           time.Duration
	now              func() time.Time
	backoff          directory.Backoff
	recordMarking    bool
}

func newConn(way Direction, host string, port int, opt []Option) *Conn {
	c := &Conn{
		id:    uuid.NewV4(),
		way:   way,
		host:  host,
		stats: metrics.New(),
		ready: make(chan struct{}),
	}
	c.port.Store(int64(port))
	c.ctx, c.cancel = context.WithCancel(context.Background())

	for _, o := range append(defaults(), opt...) {
		o(c)
	}

	c.meter = metrics.Tee{c.stats, c.extSink}
	c.log = c.baseLog.
		WithField("id", c.id).
		WithField("remote", host).
		WithField("direction", way)

	c.q.closed = c.closing
	c.q.done = c.written
	c.q.fail = c.writeFailed

	return c
}

// Initiate an outbound connection to the peer listening at a.  The stream is
// opened asynchronously; payloads sent in the meantime are queued and flushed
// once it is established, right after our hello.
func Initiate(d Dialer, a net.Addr, opt ...Option) *Conn {
	host, port := splitAddr(a)

	c := newConn(Outbound, host, port, opt)
	c.log.Debug("connecting")

	go c.connect(d, a)
	return c
}

// Accept wraps a stream received from a listener.  The remote peer must
// complete its handshake before the handshake timeout expires.
func Accept(sock net.Conn, opt ...Option) *Conn {
	host, port := splitAddr(sock.RemoteAddr())

	c := newConn(Inbound, host, port, opt)
	c.sock = sock
	c.deadline = armDeadline(c.handshakeTimeout, c.exec, c.handshakeExpired)

	c.log.Debug("accepted")

	c.q.start(sock)
	go c.readLoop(sock)
	return c
}

func (c *Conn) connect(d Dialer, a net.Addr) {
	sock, err := d.Dial(c.ctx, a)
	if err != nil {
		if !c.closing() {
			c.log.WithError(err).Debug("connect failed")
			c.Drop()
		}
		return
	}

	if !c.attach(sock) {
		sock.Close()
		return
	}

	c.log.Debug("connected")

	c.q.start(sock, c.encode(c.greeter.Hello(c))...)
	go c.readLoop(sock)
}

func (c *Conn) attach(sock net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing() {
		return false
	}

	c.sock = sock
	return true
}

func (c *Conn) detach() (sock net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sock, c.sock = c.sock, nil
	return
}

// ID uniquely identifies the connection within the process
func (c *Conn) ID() uuid.UUID { return c.id }

// Context expires when the connection has been torn down
func (c *Conn) Context() context.Context { return c.ctx }

// Direction of the connection
func (c *Conn) Direction() Direction { return c.way }

// RemoteAddr is the remote host, without port
func (c *Conn) RemoteAddr() string { return c.host }

// RemotePort is the remote's listening port.  For inbound connections it is
// the ephemeral source port until the handshake declares the real one.
func (c *Conn) RemotePort() int { return int(c.port.Load()) }

// State of the connection
func (c *Conn) State() State { return State(c.state.Load()) }

// QueueDepth is the number of frames waiting to be written, including any
// write in flight.
func (c *Conn) QueueDepth() int { return c.q.Len() }

// Ready is closed once the handshake completes or the connection is dropped,
// whichever happens first.
func (c *Conn) Ready() <-chan struct{} { return c.ready }

// Stats reports the connection's traffic counters
func (c *Conn) Stats() metrics.Snapshot { return c.stats.Snapshot() }

func (c *Conn) String() string {
	return fmt.Sprintf("%s %s:%d (%s)", c.way, c.host, c.RemotePort(), c.State())
}

// Send a payload.  It is framed and appended to the write queue.  Send reports
// false if the connection is closing or the payload exceeds the maximum
// message size.
func (c *Conn) Send(payload []byte) bool {
	if c.closing() {
		return false
	}

	if len(payload) > c.maxSize {
		c.log.WithField("size", len(payload)).Warn("refusing to send oversized message")
		return false
	}

	c.q.push(frame.Append(make([]byte, 0, frame.HeaderSize+len(payload)), payload, c.recordMarking))
	return true
}

// send a payload built by the greeter.  Nil payloads are skipped.
func (c *Conn) send(payload []byte) {
	if payload != nil {
		c.Send(payload)
	}
}

func (c *Conn) encode(payload []byte) [][]byte {
	if payload == nil || len(payload) > c.maxSize {
		return nil
	}

	return [][]byte{frame.Append(nil, payload, c.recordMarking)}
}

func (c *Conn) closing() bool { return c.State() == Closing }

func (c *Conn) written(n int) {
	c.meter.MessageWritten()
	c.meter.BytesWritten(n)
}

func (c *Conn) writeFailed(err error) {
	if c.closing() {
		return
	}

	c.log.WithError(err).Debug("write failed")
	c.Drop()
}

func (c *Conn) setState(s State) {
	if c.onState != nil {
		c.onState.OnState(c, s)
	}
}

func (c *Conn) signalReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

func directoryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, directoryTimeout)
}

func splitAddr(a net.Addr) (string, int) {
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String(), 0
	}

	n, err := strconv.Atoi(port)
	if err != nil {
		return host, 0
	}

	return host, n
}
