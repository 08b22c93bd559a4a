package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEverySubmittedTask(t *testing.T) {
	p := NewPool(4, 100)
	var count atomic.Int32
	for range 50 {
		require.True(t, p.Submit("count", func(context.Context) error {
			count.Add(1)
			return nil
		}))
	}
	p.Shutdown()
	assert.Equal(t, int32(50), count.Load())
}

func TestSubmitAfterShutdownIsDropped(t *testing.T) {
	p := NewPool(1, 1)
	p.Shutdown()
	assert.False(t, p.Submit("late", func(context.Context) error { return nil }))
	p.Shutdown()
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	p := NewPool(1, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, eventually(func() bool {
		return p.Submit("block", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}))
	<-started
	assert.False(t, p.Submit("extra", func(context.Context) error { return nil }))
	close(release)
	p.Shutdown()
}

func TestFailingAndPanickingTasksAreLogged(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	logger := zerolog.New(&lockedWriter{mu: &mu, w: &buf})
	p := NewPool(1, 10, WithLogger(logger))
	p.Submit("fails", func(context.Context) error { return errors.New("boom") })
	p.Submit("panics", func(context.Context) error { panic("oops") })
	p.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, buf.String(), `"task":"fails"`)
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), `"task":"panics"`)
}

func TestTaskContextHasTimeout(t *testing.T) {
	p := NewPool(1, 1, WithTimeout(10*time.Millisecond))
	var err atomic.Value
	p.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		err.Store(ctx.Err())
		return nil
	})
	p.Shutdown()
	assert.ErrorIs(t, err.Load().(error), context.DeadlineExceeded)
}

// eventually retries f until it succeeds; an unbuffered queue only accepts a
// task once a worker is ready to receive.
func eventually(f func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
