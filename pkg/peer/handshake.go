package peer

import (
	"context"
	"time"

	"github.com/lthibault/peerwire/pkg/directory"
)

// handshake processes the first payload received on the connection.
func (c *Conn) handshake(payload []byte) bool {
	c.deadline.Cancel()

	port, err := c.handler.OnHandshake(c, payload)
	if err != nil {
		c.log.WithError(err).Debug("handshake rejected")
		c.Drop()
		return false
	}

	if c.way == Inbound {
		return c.inboundHandshake(port)
	}

	return c.outboundHandshake()
}

func (c *Conn) inboundHandshake(port int) bool {
	if port > 0 {
		c.port.Store(int64(port))
		c.remember()
	}

	if c.registry.Accepting(c) {
		if !c.activate() {
			return false
		}

		c.send(c.greeter.Hello(c))
		c.send(c.greeter.Peers(c))
		return true
	}

	c.log.Info("not accepting peers; sending peer list before dropping")
	c.send(c.greeter.Peers(c))
	c.dropAfterFlush()
	return false
}

func (c *Conn) outboundHandshake() bool {
	c.record(func(r *directory.Record) { r.Succeeded(c.now()) })
	return c.activate()
}

func (c *Conn) activate() bool {
	if !c.state.CompareAndSwap(int32(Connecting), int32(Active)) {
		return false
	}

	c.active.Store(true)
	c.log.Debug("connection active")

	c.setState(Active)
	c.registry.Activated(c)
	c.signalReady()
	return true
}

// dropAfterFlush drops the connection once the write queue drains or the
// linger timeout passes, whichever comes first.
func (c *Conn) dropAfterFlush() {
	t := time.AfterFunc(c.linger, func() { c.exec.Post(c.Drop) })
	c.q.onIdle(func() {
		t.Stop()
		c.Drop()
	})
}

// remember creates a directory record for the remote if none exists.
func (c *Conn) remember() {
	if c.dir == nil {
		return
	}

	ctx, cancel := directoryContext(c.ctx)
	defer cancel()

	_, ok, err := c.dir.Lookup(ctx, c.host, c.RemotePort())
	if err != nil {
		c.log.WithError(err).Warn("directory lookup failed")
		return
	}

	if !ok {
		if err = c.dir.Upsert(ctx, directory.NewRecord(c.host, c.RemotePort(), c.now())); err != nil {
			c.log.WithError(err).Warn("directory update failed")
		}
	}
}

// record applies f to the remote's directory record, creating it if needed.
// The update is abandoned if the connection is torn down first.
func (c *Conn) record(f func(*directory.Record)) {
	c.update(c.ctx, f)
}

func (c *Conn) update(parent context.Context, f func(*directory.Record)) {
	if c.dir == nil {
		return
	}

	ctx, cancel := directoryContext(parent)
	defer cancel()

	r, ok, err := c.dir.Lookup(ctx, c.host, c.RemotePort())
	if err != nil {
		c.log.WithError(err).Warn("directory lookup failed")
		return
	}

	if !ok {
		r = directory.NewRecord(c.host, c.RemotePort(), c.now())
	}

	f(&r)

	if err = c.dir.Upsert(ctx, r); err != nil {
		c.log.WithError(err).Warn("directory update failed")
	}
}
