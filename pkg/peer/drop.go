package peer

import (
	"context"
	"net"
	"time"

	"github.com/lthibault/peerwire/pkg/directory"
	"github.com/pkg/errors"
)

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Drop the connection.  Drop is idempotent and never blocks: the connection
// is marked closing immediately and torn down later on the executor.
func (c *Conn) Drop() {
	if State(c.state.Swap(int32(Closing))) == Closing {
		return
	}

	c.deadline.Cancel()
	c.log.Debug("dropping connection")
	c.setState(Closing)
	c.signalReady()

	c.exec.Post(func() { c.torn.Do(c.teardown) })
}

func (c *Conn) teardown() {
	if c.way == Outbound && !c.active.Load() {
		go c.recordFailure(c.now())
	}

	c.registry.Dropped(c)

	if sock := c.detach(); sock != nil {
		if err := shutdown(sock); err != nil {
			c.log.WithError(err).Warn("socket shutdown failed")
		}

		if err := sock.Close(); err != nil {
			c.log.WithError(err).Debug("socket close failed")
		}
	}

	c.cancel()
}

// recordFailure pushes back the next attempt to the remote.  It runs off the
// executor and outlives the connection's context.
func (c *Conn) recordFailure(at time.Time) {
	c.update(context.Background(), func(r *directory.Record) { r.Failed(at, c.backoff) })
}

func shutdown(sock net.Conn) error {
	hc, ok := sock.(halfCloser)
	if !ok {
		return nil
	}

	if err := hc.CloseRead(); err != nil {
		return errors.Wrap(err, "close read")
	}

	return errors.Wrap(hc.CloseWrite(), "close write")
}
