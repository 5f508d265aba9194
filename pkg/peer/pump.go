package peer

import (
	"io"

	"github.com/lthibault/peerwire/pkg/frame"
)

func (c *Conn) readLoop(r io.Reader) {
	var hdr frame.Header

	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			c.readFailed(err)
			return
		}

		if c.closing() {
			return
		}

		c.meter.BytesRead(frame.HeaderSize)

		n, err := frame.DecodeHeaderMax(hdr[:], c.maxSize)
		if err != nil {
			c.log.WithError(err).Warn("message size unacceptable")
			c.Drop()
			return
		}

		body := make([]byte, n)
		if _, err = io.ReadFull(r, body); err != nil {
			c.readFailed(err)
			return
		}

		if c.closing() {
			return
		}

		c.meter.BytesRead(n)
		c.meter.MessageRead()

		if !c.deliver(body) {
			return
		}
	}
}

// deliver a payload according to the connection state.  It reports whether the
// pump should keep reading.
func (c *Conn) deliver(payload []byte) bool {
	switch c.State() {
	case Connecting:
		return c.handshake(payload)
	case Active:
		c.handler.OnMessage(c, payload)
		return true
	}

	return false
}

func (c *Conn) readFailed(err error) {
	if c.closing() {
		return
	}

	if err == io.EOF {
		c.log.Debug("remote closed connection")
	} else {
		c.log.WithError(err).Debug("read failed")
	}

	c.Drop()
}
