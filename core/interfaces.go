package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// The panic has already been converted into a Failed TaskHandle; the handler
// exists for logging and crash reporting.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - poolName: The name of the pool where the panic occurred
	// - slotID: The slot that ran the task
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolName string, slotID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic value and stack at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolName string, slotID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("pool", poolName),
		F("slot", slotID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a pool task ran and how it ended.
	RecordTaskDuration(poolName string, state TaskState, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordQueueDepth records the number of tasks waiting for a slot.
	RecordQueueDepth(poolName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., after shutdown).
	RecordTaskRejected(poolName string, reason string)

	// RecordWorkerRun records one CancellableWorker run driven by a Controller.
	RecordWorkerRun(controllerName string, outcome RunOutcome, duration time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolName string, state TaskState, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any)    {}
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int)       {}
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string) {}
func (m *NilMetrics) RecordWorkerRun(controllerName string, outcome RunOutcome, duration time.Duration) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a pool refuses or discards a task:
// submission after Shutdown/Stop, or queued work dropped by Stop.
// The task's handle is failed with ErrPoolClosed either way.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolName string, taskName string, reason string)
}

// DefaultRejectedTaskHandler logs the rejected task at warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolName string, taskName string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected", F("pool", poolName), F("task", taskName), F("reason", reason))
}

// =============================================================================
// WorkerPoolConfig
// =============================================================================

// WorkerPoolConfig holds configuration options for WorkerPool.
// All handlers are optional; defaults are filled in by NewWorkerPool.
type WorkerPoolConfig struct {
	// Name labels logs and metrics. Defaults to "pool".
	Name string

	// Capacity is the number of execution slots. Must be at least 1.
	Capacity int

	// Sink receives events of tasks submitted without WithSink.
	Sink Sink

	Logger              Logger
	PanicHandler        PanicHandler
	Metrics             Metrics
	RejectedTaskHandler RejectedTaskHandler

	// HistoryCapacity bounds RecentTasks. Defaults to 100.
	HistoryCapacity int
}

// DefaultWorkerPoolConfig returns a config with default handlers.
func DefaultWorkerPoolConfig(capacity int) *WorkerPoolConfig {
	logger := NewDefaultLogger()
	return &WorkerPoolConfig{
		Name:                "pool",
		Capacity:            capacity,
		Logger:              logger,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
		HistoryCapacity:     defaultTaskHistoryCapacity,
	}
}
