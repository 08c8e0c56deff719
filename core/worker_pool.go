package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// maxAllowedCapacity caps the number of slot goroutines a pool may own.
	maxAllowedCapacity = 10000
)

// WorkerPool runs submitted tasks on a fixed set of slot goroutines.
// Tasks are dispatched oldest first whenever a slot is free; completion order
// across tasks is whatever order they finish in.
type WorkerPool struct {
	name     string
	capacity int

	// mu guards queue/active/closed transitions that must be observed together.
	mu      sync.Mutex
	queue   *FIFOQueue[*TaskHandle]
	active  int
	closed  bool
	drained chan struct{}

	signal chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	// ctx is the parent of every task context; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once

	sink                Sink
	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	history             *executionHistory

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewWorkerPool creates a pool with capacity slots and starts them.
// Panics if capacity is out of the valid range [1, 10000].
func NewWorkerPool(capacity int) *WorkerPool {
	return NewWorkerPoolWithConfig(DefaultWorkerPoolConfig(capacity))
}

// NewWorkerPoolWithConfig creates and starts a pool from config.
func NewWorkerPoolWithConfig(config *WorkerPoolConfig) *WorkerPool {
	if config == nil {
		panic("WorkerPool: config must not be nil")
	}
	if config.Capacity < 1 {
		panic("WorkerPool: capacity must be at least 1")
	}
	if config.Capacity > maxAllowedCapacity {
		panic(fmt.Sprintf("WorkerPool: capacity must not exceed %d", maxAllowedCapacity))
	}

	p := &WorkerPool{
		name:                config.Name,
		capacity:            config.Capacity,
		queue:               NewFIFOQueue[*TaskHandle](),
		drained:             make(chan struct{}),
		signal:              make(chan struct{}, config.Capacity*2),
		stopCh:              make(chan struct{}),
		sink:                config.Sink,
		logger:              config.Logger,
		panicHandler:        config.PanicHandler,
		metrics:             config.Metrics,
		rejectedTaskHandler: config.RejectedTaskHandler,
		history:             newExecutionHistory(config.HistoryCapacity),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	// Use defaults if not provided
	if p.name == "" {
		p.name = "pool"
	}
	p.logger = loggerOrDefault(p.logger)
	if p.panicHandler == nil {
		p.panicHandler = &DefaultPanicHandler{Logger: p.logger}
	}
	if p.metrics == nil {
		p.metrics = &NilMetrics{}
	}
	if p.rejectedTaskHandler == nil {
		p.rejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: p.logger}
	}

	for i := 0; i < p.capacity; i++ {
		p.wg.Add(1)
		go p.slotLoop(i)
	}

	p.logger.Debug("worker pool started", F("pool", p.name), F("capacity", p.capacity))
	return p
}

// =============================================================================
// Submission
// =============================================================================

// SubmitOption customizes a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	name string
	sink Sink
}

// WithName labels the task in logs, metrics and history.
func WithName(name string) SubmitOption {
	return func(o *submitOptions) { o.name = name }
}

// WithSink routes this task's events to sink instead of the pool default.
func WithSink(sink Sink) SubmitOption {
	return func(o *submitOptions) { o.sink = sink }
}

// Submit enqueues task and returns its Pending handle without blocking.
// After Shutdown or Stop the returned handle is already Failed with
// ErrPoolClosed and its error and finished events have been emitted.
func (p *WorkerPool) Submit(task Task, opts ...SubmitOption) *TaskHandle {
	if task == nil {
		panic("WorkerPool: task must not be nil")
	}

	o := submitOptions{sink: p.sink}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = "task"
	}

	h := newTaskHandle(p.name, o.name, task, o.sink)
	p.submitted.Add(1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.reject(h, "closed")
		return h
	}
	p.queue.Push(h)
	depth := p.queue.Len()
	p.mu.Unlock()

	p.metrics.RecordQueueDepth(p.name, depth)

	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full, but the task is already queued and a slot
		// will re-check the queue before waiting again.
	}
	return h
}

func (p *WorkerPool) reject(h *TaskHandle, reason string) {
	p.rejected.Add(1)
	p.failed.Add(1)
	p.rejectedTaskHandler.HandleRejectedTask(p.name, h.name, reason)
	p.metrics.RecordTaskRejected(p.name, reason)
	h.complete(nil, newTaskError(fmt.Errorf("%s: %w", reason, ErrPoolClosed)))
}

// =============================================================================
// Slots
// =============================================================================

// next blocks until a task is available or the pool stops.
func (p *WorkerPool) next() (*TaskHandle, bool) {
	for {
		p.mu.Lock()
		if h, ok := p.queue.Pop(); ok {
			p.active++
			p.mu.Unlock()
			return h, true
		}
		p.mu.Unlock()

		select {
		case <-p.signal:
			continue
		case <-p.stopCh:
			return nil, false
		}
	}
}

// slotLoop is the main loop of one execution slot.
func (p *WorkerPool) slotLoop(slotID int) {
	defer p.wg.Done()

	for {
		h, ok := p.next()
		if !ok {
			return
		}
		p.run(slotID, h)
		p.release()
	}
}

func (p *WorkerPool) run(slotID int, h *TaskHandle) {
	ctx := p.ctx

	h.markRunning()
	p.logger.Debug("task started", F("pool", p.name), F("task", h.name), F("id", h.id), F("slot", slotID))

	panicInfo, stack := h.execute(ctx)

	state := h.State()
	record := TaskExecutionRecord{
		TaskID:   h.id,
		Name:     h.name,
		PoolName: p.name,
		SlotID:   slotID,
		State:    state,
		Panicked: panicInfo != nil,
	}
	h.mu.Lock()
	record.StartedAt = h.startedAt
	record.FinishedAt = h.finishedAt
	if h.err != nil {
		record.ErrorKind = h.err.Kind
	}
	h.mu.Unlock()
	record.Duration = record.FinishedAt.Sub(record.StartedAt)
	p.history.Add(record)

	p.metrics.RecordTaskDuration(p.name, state, record.Duration)
	if state == TaskSucceeded {
		p.succeeded.Add(1)
	} else {
		p.failed.Add(1)
	}

	switch {
	case panicInfo != nil:
		p.metrics.RecordTaskPanic(p.name, panicInfo)
		p.panicHandler.HandlePanic(ctx, p.name, slotID, panicInfo, stack)
	case state == TaskFailed:
		p.logger.Warn("task failed", F("pool", p.name), F("task", h.name), F("id", h.id), F("error", h.Err()))
	default:
		p.logger.Debug("task finished", F("pool", p.name), F("task", h.name), F("id", h.id), F("duration", record.Duration))
	}

	h.publish()
}

// release frees the slot and closes drained once a closed pool has no work left.
func (p *WorkerPool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	p.maybeDrainedLocked()
}

func (p *WorkerPool) maybeDrainedLocked() {
	if !p.closed || p.active != 0 || !p.queue.IsEmpty() {
		return
	}
	select {
	case <-p.drained:
	default:
		close(p.drained)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Shutdown stops accepting tasks, lets every queued and running task finish,
// then stops the slots. If ctx ends first, it falls back to Stop and returns
// ctx's error. Safe to call repeatedly.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.maybeDrainedLocked()
	p.mu.Unlock()

	select {
	case <-p.drained:
		p.stopSlots()
		return nil
	case <-ctx.Done():
		p.Stop()
		return fmt.Errorf("worker pool %s shutdown: %w", p.name, ctx.Err())
	}
}

// Stop stops accepting tasks, fails every queued task with ErrPoolClosed,
// cancels the context of running tasks and waits for them to return. Tasks
// that ignore their context run to completion. Safe to call repeatedly.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	p.closed = true
	discarded := p.queue.Drain()
	p.maybeDrainedLocked()
	p.mu.Unlock()

	for _, h := range discarded {
		p.reject(h, "discarded")
	}
	p.stopSlots()
}

func (p *WorkerPool) stopSlots() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.stopCh)
		p.logger.Debug("worker pool stopping", F("pool", p.name))
	})
	p.wg.Wait()
}

// WaitIdle blocks until nothing is queued or running, or ctx ends.
// Unlike Shutdown it leaves the pool open.
func (p *WorkerPool) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		idle := p.active == 0 && p.queue.IsEmpty()
		p.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// =============================================================================
// Introspection
// =============================================================================

func (p *WorkerPool) Name() string  { return p.name }
func (p *WorkerPool) Capacity() int { return p.capacity }

func (p *WorkerPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *WorkerPool) QueuedCount() int {
	return p.queue.Len()
}

func (p *WorkerPool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats returns current observability data for this pool.
func (p *WorkerPool) Stats() PoolStats {
	p.mu.Lock()
	active, closed := p.active, p.closed
	p.mu.Unlock()
	return PoolStats{
		Name:      p.name,
		Capacity:  p.capacity,
		Queued:    p.queue.Len(),
		Active:    active,
		Submitted: p.submitted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Closed:    closed,
	}
}

// RecentTasks returns completed task records in newest-first order.
func (p *WorkerPool) RecentTasks(limit int) []TaskExecutionRecord {
	return p.history.Recent(limit)
}
