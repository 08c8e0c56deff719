package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSingleThreadTaskRunner_ExecutionOrder tests execution order
// Main test items:
// 1. Submit multiple closures to SingleThreadTaskRunner
// 2. Verify closures execute in submission order (FIFO)
func TestSingleThreadTaskRunner_ExecutionOrder(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	var order []int
	for i := range 10 {
		runner.PostTask(func(ctx context.Context) {
			order = append(order, i)
		})
	}

	require.NoError(t, runner.WaitIdle(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

// TestSingleThreadTaskRunner_NeverOverlaps tests that closures never run concurrently
// Main test items:
// 1. Post closures from many goroutines
// 2. Track how many closures are inside their body at once
// 3. The maximum must be exactly 1
func TestSingleThreadTaskRunner_NeverOverlaps(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				runner.PostTask(func(ctx context.Context) {
					n := inside.Add(1)
					if n > maxInside.Load() {
						maxInside.Store(n)
					}
					inside.Add(-1)
				})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, runner.WaitIdle(context.Background()))
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestSingleThreadTaskRunner_DelayedTask(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	done := make(chan time.Time, 1)
	start := time.Now()
	runner.PostDelayedTask(func(ctx context.Context) {
		done <- time.Now()
	}, 30*time.Millisecond)

	select {
	case at := <-done:
		assert.GreaterOrEqual(t, at.Sub(start), 30*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task did not run")
	}
}

// TestSingleThreadTaskRunner_PanicRecovery verifies a panicking closure does not kill the runner
func TestSingleThreadTaskRunner_PanicRecovery(t *testing.T) {
	runner := NewSingleThreadTaskRunnerWithLogger(NewNoOpLogger())
	defer runner.Stop()

	var ran atomic.Bool
	runner.PostTask(func(ctx context.Context) { panic("boom") })
	runner.PostTask(func(ctx context.Context) { ran.Store(true) })

	require.NoError(t, runner.WaitIdle(context.Background()))
	assert.True(t, ran.Load())
}

// TestSingleThreadTaskRunner_StopDropsPending tests Stop semantics
// Main test items:
// 1. Block the runner, queue more closures
// 2. Stop while the first closure is running
// 3. Queued closures never run and later posts are ignored
func TestSingleThreadTaskRunner_StopDropsPending(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	runner.SetName("ui")
	assert.Equal(t, "ui", runner.Name())

	entered := make(chan struct{})
	release := make(chan struct{})
	runner.PostTask(func(ctx context.Context) {
		close(entered)
		<-release
	})
	<-entered

	var ran atomic.Int32
	for range 3 {
		runner.PostTask(func(ctx context.Context) { ran.Add(1) })
	}
	assert.Equal(t, 3, runner.PendingTaskCount())

	stopped := make(chan struct{})
	go func() {
		runner.Stop()
		close(stopped)
	}()
	eventually(t, runner.IsClosed)
	close(release)
	<-stopped

	runner.PostTask(func(ctx context.Context) { ran.Add(1) })
	assert.Zero(t, ran.Load())
	assert.Equal(t, 0, runner.PendingTaskCount())
	assert.Error(t, runner.WaitIdle(context.Background()))
}

// TestSingleThreadTaskRunner_ShutdownFromClosure verifies the consumer can quit its own loop
func TestSingleThreadTaskRunner_ShutdownFromClosure(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	runner.PostTask(func(ctx context.Context) {
		GetCurrentTaskRunner(ctx).(*SingleThreadTaskRunner).Shutdown()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.WaitShutdown(ctx))
	assert.True(t, runner.IsClosed())
}

func TestSingleThreadTaskRunner_WaitIdleContext(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	release := make(chan struct{})
	runner.PostTask(func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, runner.WaitIdle(ctx), context.DeadlineExceeded)
	close(release)
}
