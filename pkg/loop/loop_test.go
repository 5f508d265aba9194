package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoop(t *testing.T) {
	t.Run("Order", func(t *testing.T) {
		l := New(context.Background())
		defer l.Stop()

		var mu sync.Mutex
		var got []int
		var wg sync.WaitGroup
		wg.Add(100)

		for i := 0; i < 100; i++ {
			i := i
			l.Post(func() {
				defer wg.Done()
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			})
		}

		wg.Wait()
		for i, v := range got {
			assert.Equal(t, i, v)
		}
	})

	t.Run("NotInline", func(t *testing.T) {
		l := New(context.Background())
		defer l.Stop()

		var ran bool
		done := make(chan struct{})
		l.Post(func() {
			ran = true
			close(done)
		})

		<-done
		assert.True(t, ran)
	})

	t.Run("Reentrant", func(t *testing.T) {
		l := New(context.Background())
		defer l.Stop()

		done := make(chan struct{})
		l.Post(func() {
			l.Post(func() { close(done) })
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("nested post did not run")
		}
	})

	t.Run("Stopped", func(t *testing.T) {
		c, cancel := context.WithCancel(context.Background())
		l := New(c)
		cancel()

		select {
		case <-l.Done():
		case <-time.After(time.Second):
			t.Fatal("loop did not stop on context expiry")
		}
		assert.Error(t, l.Context().Err())

		done := make(chan struct{})
		l.Post(func() { close(done) })

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("work posted after stop was lost")
		}
	})
}

func TestGo(t *testing.T) {
	done := make(chan struct{})
	Go.Post(func() { close(done) })
	<-done
}
