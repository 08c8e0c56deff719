package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is the unit of work submitted to a WorkerPool. Arguments are bound by
// the closure itself; use Bind or TaskOf to adapt typed functions.
type Task func(ctx context.Context) (any, error)

// Closure is a fire-and-forget unit posted to a TaskRunner.
type Closure func(ctx context.Context)

// TaskOf adapts a typed function into a Task.
func TaskOf[T any](fn func(ctx context.Context) (T, error)) Task {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Bind adapts a one-argument function into a Task, capturing arg at bind time.
//
//	pool.Submit(core.Bind(fetchPage, "https://example.com"))
func Bind[A, T any](fn func(ctx context.Context, arg A) (T, error), arg A) Task {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx, arg)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// =============================================================================
// TaskID
// =============================================================================

// TaskID identifies a submitted task.
type TaskID uuid.UUID

// GenerateTaskID returns a fresh random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

func (id TaskID) IsZero() bool {
	return id == TaskID(uuid.Nil)
}

// =============================================================================
// TaskState
// =============================================================================

type TaskState int32

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// =============================================================================
// TaskRunner: consumer-side execution context
// =============================================================================

// TaskRunner executes posted closures on an execution context it owns.
// Notifications are marshaled onto a consumer by posting to its TaskRunner.
type TaskRunner interface {
	PostTask(task Closure)
	PostDelayedTask(task Closure, delay time.Duration)
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// GetCurrentTaskRunner returns the runner executing the current closure, or nil.
func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
