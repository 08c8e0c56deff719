package bgtask

import (
	"context"
	"sync"

	"github.com/Swind/go-bgtask/core"
)

// =============================================================================
// Global Worker Pool Helper (Singleton)
// =============================================================================

var (
	globalPool *core.WorkerPool
	globalMu   sync.Mutex
)

// InitGlobalPool initializes the process-wide pool with capacity slots.
// It is a no-op if the pool already exists.
func InitGlobalPool(capacity int) {
	InitGlobalPoolWithConfig(core.DefaultWorkerPoolConfig(capacity))
}

// InitGlobalPoolWithConfig is InitGlobalPool with full configuration.
func InitGlobalPoolWithConfig(config *core.WorkerPoolConfig) {
	if config == nil {
		panic("WorkerPool: config must not be nil")
	}
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		return // Already initialized
	}
	if config.Name == "" || config.Name == "pool" {
		config.Name = "global-pool"
	}
	globalPool = core.NewWorkerPoolWithConfig(config)
}

// GetGlobalPool returns the global pool instance.
// It panics if InitGlobalPool has not been called.
func GetGlobalPool() *core.WorkerPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		panic("global pool not initialized. Call InitGlobalPool() first.")
	}
	return globalPool
}

// ShutdownGlobalPool drains and stops the global pool. The next
// InitGlobalPool creates a fresh one.
func ShutdownGlobalPool() {
	globalMu.Lock()
	pool := globalPool
	globalPool = nil
	globalMu.Unlock()

	if pool != nil {
		_ = pool.Shutdown(context.Background())
	}
}

// Submit runs task on the global pool.
func Submit(task Task, opts ...SubmitOption) *TaskHandle {
	return GetGlobalPool().Submit(task, opts...)
}
