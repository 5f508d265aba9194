package peer

import (
	"sync/atomic"
	"time"

	"github.com/lthibault/peerwire/pkg/loop"
)

// deadline fires at most once, on the executor, unless cancelled first.
type deadline struct {
	done atomic.Bool
	t    *time.Timer
}

func armDeadline(d time.Duration, exec loop.Executor, f func()) *deadline {
	dl := new(deadline)
	dl.t = time.AfterFunc(d, func() {
		exec.Post(func() {
			if dl.done.CompareAndSwap(false, true) {
				f()
			}
		})
	})

	return dl
}

// Cancel the deadline.  It reports false if the deadline already fired or was
// cancelled.  Cancel is a no-op on a nil deadline.
func (dl *deadline) Cancel() bool {
	if dl == nil || !dl.done.CompareAndSwap(false, true) {
		return false
	}

	dl.t.Stop()
	return true
}

func (c *Conn) handshakeExpired() {
	if c.State() != Connecting {
		return
	}

	c.log.WithField("timeout", c.handshakeTimeout).Info("handshake timed out")
	c.Drop()
}
