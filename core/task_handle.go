package core

import (
	"context"
	"runtime/debug"
	"sync"
	"time"
)

// TaskHandle is the submitter's view of one task. It is created Pending by
// WorkerPool.Submit, mutated only by the slot that executes the task, and is
// terminal once Succeeded or Failed.
type TaskHandle struct {
	id     TaskID
	name   string
	source string
	task   Task
	sink   Sink

	cancel CancelFlag

	mu         sync.Mutex
	state      TaskState
	result     any
	err        *TaskError
	startedAt  time.Time
	finishedAt time.Time

	// progressMu is read-held while a progress event is delivered; publish
	// takes it to set sealed, so no progress can land after finished.
	progressMu sync.RWMutex
	sealed     bool

	done chan struct{}
}

func newTaskHandle(source, name string, task Task, sink Sink) *TaskHandle {
	return &TaskHandle{
		id:     GenerateTaskID(),
		name:   name,
		source: source,
		task:   task,
		sink:   sinkOrDiscard(sink),
		state:  TaskPending,
		done:   make(chan struct{}),
	}
}

func (h *TaskHandle) ID() TaskID   { return h.id }
func (h *TaskHandle) Name() string { return h.name }

func (h *TaskHandle) State() TaskState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Result returns the task's value once it has Succeeded.
func (h *TaskHandle) Result() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err returns the contained failure once the task has Failed, nil otherwise.
func (h *TaskHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err == nil {
		return nil
	}
	return h.err
}

// TaskError is Err without the interface conversion.
func (h *TaskHandle) TaskError() *TaskError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Duration is the wall time spent Running; zero until terminal.
func (h *TaskHandle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finishedAt.IsZero() || h.startedAt.IsZero() {
		return 0
	}
	return h.finishedAt.Sub(h.startedAt)
}

// Done is closed after the finished event has been handed to the sink.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task is terminal or ctx ends.
func (h *TaskHandle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.Result(), h.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel asks the task body to stop at its next IsCancelled check.
// A task that never checks runs to completion.
func (h *TaskHandle) Cancel() {
	h.cancel.Set(true)
}

func (h *TaskHandle) markRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = TaskRunning
	h.startedAt = time.Now()
}

// execute runs the body and settles the handle as Succeeded or Failed,
// converting a returned error or a panic into a TaskError. It never lets a
// panic escape. Events are not emitted until publish.
func (h *TaskHandle) execute(ctx context.Context) (panicInfo any, stack []byte) {
	var (
		value any
		err   error
	)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				panicInfo = rec
				stack = debug.Stack()
			}
		}()
		value, err = h.task(withTaskHandle(ctx, h))
	}()

	switch {
	case panicInfo != nil:
		h.settle(nil, newPanicError(panicInfo, stack))
	case err != nil:
		h.settle(nil, newTaskError(err))
	default:
		h.settle(value, nil)
	}
	return panicInfo, stack
}

// complete settles the handle and publishes its outcome.
func (h *TaskHandle) complete(value any, failure *TaskError) {
	if h.settle(value, failure) {
		h.publish()
	}
}

// settle records the outcome. It reports false if the handle was already terminal.
func (h *TaskHandle) settle(value any, failure *TaskError) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return false
	}
	h.finishedAt = time.Now()
	if failure != nil {
		h.state = TaskFailed
		h.err = failure
	} else {
		h.state = TaskSucceeded
		h.result = value
	}
	return true
}

// publish emits result-or-error followed by finished, then closes Done.
func (h *TaskHandle) publish() {
	h.mu.Lock()
	value, failure := h.result, h.err
	h.mu.Unlock()

	h.progressMu.Lock()
	h.sealed = true
	h.progressMu.Unlock()

	if failure != nil {
		h.emit(Event{Kind: EventError, Err: failure})
	} else {
		h.emit(Event{Kind: EventResult, Value: value})
	}
	h.emit(Event{Kind: EventFinished})
	close(h.done)
}

func (h *TaskHandle) emit(ev Event) {
	ev.Source = h.source
	ev.TaskID = h.id
	h.sink.Deliver(ev)
}

// =============================================================================
// Task context helpers
// =============================================================================

type taskHandleKeyType struct{}

var taskHandleKey taskHandleKeyType

func withTaskHandle(ctx context.Context, h *TaskHandle) context.Context {
	return context.WithValue(ctx, taskHandleKey, h)
}

func handleFromContext(ctx context.Context) *TaskHandle {
	h, _ := ctx.Value(taskHandleKey).(*TaskHandle)
	return h
}

// ReportProgress emits a progress event for the pool task running under ctx.
// Outside a pool task, or once the task has settled, it does nothing.
func ReportProgress(ctx context.Context, current, total int) {
	h := handleFromContext(ctx)
	if h == nil {
		return
	}
	h.progressMu.RLock()
	defer h.progressMu.RUnlock()
	if h.sealed || h.State().IsTerminal() {
		return
	}
	h.emit(Event{Kind: EventProgress, Current: current, Total: total})
}

// IsCancelled reports whether TaskHandle.Cancel was called for the pool
// task running under ctx.
func IsCancelled(ctx context.Context) bool {
	if h := handleFromContext(ctx); h != nil {
		return h.cancel.IsSet()
	}
	return false
}

// CurrentTaskID returns the ID of the pool task running under ctx.
func CurrentTaskID(ctx context.Context) (TaskID, bool) {
	if h := handleFromContext(ctx); h != nil {
		return h.id, true
	}
	return TaskID{}, false
}
