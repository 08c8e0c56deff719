package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// SingleThreadTaskRunner binds a dedicated Goroutine to execute closures sequentially.
// It guarantees that all closures posted to it run on the same Goroutine (Thread Affinity).
//
// Use cases:
// 1. The dedicated execution context of a Controller's worker
// 2. Simulating a consumer's Main Thread / UI Thread that receives notifications
// 3. Blocking IO or CGO calls that need a stable goroutine
//
// PostTask never blocks: the backlog is an unbounded FIFO queue.
type SingleThreadTaskRunner struct {
	queue  *FIFOQueue[Closure]
	signal chan struct{}

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	stopped      chan struct{}
	stopOnce     sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	logger Logger

	name string
	mu   sync.Mutex
}

// NewSingleThreadTaskRunner creates and starts a new SingleThreadTaskRunner.
// It immediately spawns a dedicated goroutine for task execution.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	return NewSingleThreadTaskRunnerWithLogger(nil)
}

// NewSingleThreadTaskRunnerWithLogger is NewSingleThreadTaskRunner with a
// logger for recovered panics.
func NewSingleThreadTaskRunnerWithLogger(logger Logger) *SingleThreadTaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SingleThreadTaskRunner{
		queue:        NewFIFOQueue[Closure](),
		signal:       make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
		logger:       loggerOrDefault(logger),
	}

	// Start the dedicated message loop
	go r.runLoop()

	return r
}

// Name returns the name of the task runner
func (r *SingleThreadTaskRunner) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// SetName sets the name of the task runner
func (r *SingleThreadTaskRunner) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

// PostTask queues task for execution. Closures posted after Shutdown or Stop
// are dropped.
func (r *SingleThreadTaskRunner) PostTask(task Closure) {
	if task == nil || r.closed.Load() {
		return
	}
	r.queue.Push(task)
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// PostDelayedTask queues task after delay.
// Uses time.AfterFunc so timers do not occupy the dedicated goroutine.
func (r *SingleThreadTaskRunner) PostDelayedTask(task Closure, delay time.Duration) {
	if r.closed.Load() {
		return
	}
	time.AfterFunc(delay, func() {
		r.PostTask(task)
	})
}

// PendingTaskCount returns the number of closures waiting to run.
func (r *SingleThreadTaskRunner) PendingTaskCount() int {
	return r.queue.Len()
}

// Shutdown marks the runner as closed and signals shutdown waiters.
// Unlike Stop(), this method does NOT wait for the runLoop to exit,
// so a closure may call Shutdown() on its own runner.
//
// After calling Shutdown():
// - WaitShutdown() will return
// - IsClosed() will return true
// - New closures posted will be ignored
// - Queued closures that have not started are dropped
func (r *SingleThreadTaskRunner) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		close(r.shutdownChan)
	})
}

// IsClosed returns true if the runner has been shut down or stopped
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop shuts the runner down and blocks until the closure currently running
// (if any) has returned and the dedicated goroutine has exited.
// Calling Stop from a closure on this runner deadlocks.
func (r *SingleThreadTaskRunner) Stop() {
	r.stopOnce.Do(func() {
		r.Shutdown()
		<-r.stopped
		r.queue.Clear()
	})
}

// runLoop is the core of this runner, it occupies a dedicated goroutine
func (r *SingleThreadTaskRunner) runLoop() {
	defer close(r.stopped)

	// Create context with taskRunnerKey for GetCurrentTaskRunner
	runCtx := context.WithValue(r.ctx, taskRunnerKey, r)

	for {
		if r.ctx.Err() != nil {
			return
		}
		if task, ok := r.queue.Pop(); ok {
			r.runTask(runCtx, task)
			continue
		}

		select {
		case <-r.signal:
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *SingleThreadTaskRunner) runTask(ctx context.Context, task Closure) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("closure panicked",
				F("runner", r.Name()),
				F("panic", rec),
				F("stack", string(debug.Stack())),
			)
		}
	}()
	task(ctx)
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all currently queued closures have completed execution.
// This is implemented by posting a barrier closure and waiting for it to execute.
//
// Returns error if the runner is closed or ctx ends first.
// Closures posted after WaitIdle is called are not waited for.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return fmt.Errorf("runner is closed")
	}

	done := make(chan struct{})
	r.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return fmt.Errorf("runner stopped before becoming idle")
	}
}

// WaitShutdown blocks until Shutdown() is called on this runner.
//
// Example:
//
//	// UI thread: quit when the last notification has been handled
//	uiRunner.PostTask(func(ctx context.Context) {
//	    core.GetCurrentTaskRunner(ctx).(*core.SingleThreadTaskRunner).Shutdown()
//	})
//
//	// Main goroutine waits for shutdown
//	uiRunner.WaitShutdown(context.Background())
func (r *SingleThreadTaskRunner) WaitShutdown(ctx context.Context) error {
	select {
	case <-r.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
