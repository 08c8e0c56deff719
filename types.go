package bgtask

import (
	"context"

	"github.com/Swind/go-bgtask/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the bgtask package for most use cases.

// Task is the unit of work submitted to a WorkerPool
type Task = core.Task

// Closure is a fire-and-forget unit posted to a TaskRunner
type Closure = core.Closure

type TaskID = core.TaskID
type TaskState = core.TaskState
type TaskHandle = core.TaskHandle
type TaskError = core.TaskError

// WorkerPool runs submitted tasks on a fixed number of slots
type WorkerPool = core.WorkerPool
type WorkerPoolConfig = core.WorkerPoolConfig
type SubmitOption = core.SubmitOption

// TaskRunner is the interface for posting closures to a consumer context
type TaskRunner = core.TaskRunner

// SingleThreadTaskRunner ensures all closures execute on the same dedicated goroutine
type SingleThreadTaskRunner = core.SingleThreadTaskRunner

// Event is a notification; Sink decides how it reaches the consumer
type Event = core.Event
type EventKind = core.EventKind
type EventHandler = core.EventHandler
type Sink = core.Sink
type SinkFunc = core.SinkFunc
type MultiSink = core.MultiSink

// CancellableWorker and Controller for long-lived cancellable runs
type CancellableWorker[In, Out any] = core.CancellableWorker[In, Out]
type Controller[In, Out any] = core.Controller[In, Out]
type ControllerConfig = core.ControllerConfig
type FoldFunc[In, Out any] = core.FoldFunc[In, Out]
type WorkerOption = core.WorkerOption
type Lifecycle = core.Lifecycle
type RunOutcome = core.RunOutcome

type Logger = core.Logger
type Metrics = core.Metrics

// Task states
const (
	TaskPending   = core.TaskPending
	TaskRunning   = core.TaskRunning
	TaskSucceeded = core.TaskSucceeded
	TaskFailed    = core.TaskFailed
)

// Event kinds
const (
	EventStarted       = core.EventStarted
	EventProgressRange = core.EventProgressRange
	EventProgress      = core.EventProgress
	EventResult        = core.EventResult
	EventError         = core.EventError
	EventFinished      = core.EventFinished
	EventStateChanged  = core.EventStateChanged
)

var (
	ErrAborted    = core.ErrAborted
	ErrPoolClosed = core.ErrPoolClosed
)

// Constructors and helpers
var (
	NewWorkerPool           = core.NewWorkerPool
	NewWorkerPoolWithConfig = core.NewWorkerPoolWithConfig
	DefaultWorkerPoolConfig = core.DefaultWorkerPoolConfig
	WithName                = core.WithName
	WithSink                = core.WithSink

	NewSingleThreadTaskRunner = core.NewSingleThreadTaskRunner
	NewRunnerSink             = core.NewRunnerSink
	NewChanSink               = core.NewChanSink

	NewMultiplyWorker   = core.NewMultiplyWorker
	WithWorkerName      = core.WithWorkerName
	WithStepDelay       = core.WithStepDelay
	WithRateLimit       = core.WithRateLimit
	WithPacer           = core.WithPacer
	WithCheckpointEvery = core.WithCheckpointEvery
	WithWorkerLogger    = core.WithWorkerLogger

	NewSlogLogger  = core.NewSlogLogger
	NewNoOpLogger  = core.NewNoOpLogger
	ReportProgress = core.ReportProgress
	IsCancelled    = core.IsCancelled
	CurrentTaskID  = core.CurrentTaskID

	// GetCurrentTaskRunner retrieves the current TaskRunner from context
	GetCurrentTaskRunner = core.GetCurrentTaskRunner
)

// NewCancellableWorker creates an Idle worker folding In values into Out.
func NewCancellableWorker[In, Out any](initial Out, fold FoldFunc[In, Out], opts ...WorkerOption) *CancellableWorker[In, Out] {
	return core.NewCancellableWorker(initial, fold, opts...)
}

// NewController starts the dedicated goroutine for worker.
func NewController[In, Out any](worker *CancellableWorker[In, Out], sink Sink, config *ControllerConfig) *Controller[In, Out] {
	return core.NewController(worker, sink, config)
}

// SubmitAndReply runs task on pool and posts reply onto replyRunner.
func SubmitAndReply[T any](pool *WorkerPool, task func(ctx context.Context) (T, error), reply func(ctx context.Context, value T, err error), replyRunner TaskRunner, opts ...SubmitOption) *TaskHandle {
	return core.SubmitAndReply(pool, task, reply, replyRunner, opts...)
}
