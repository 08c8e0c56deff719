package core

import "time"

// TaskExecutionRecord captures a completed pool task.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	PoolName   string
	SlotID     int
	State      TaskState
	ErrorKind  string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// PoolStats represents runtime observability state for a WorkerPool.
type PoolStats struct {
	Name      string
	Capacity  int
	Queued    int
	Active    int
	Submitted int64
	Succeeded int64
	Failed    int64
	Rejected  int64
	Closed    bool
}

// ControllerStats represents runtime observability state for a Controller.
type ControllerStats struct {
	Name      string
	Running   bool
	Lifecycle Lifecycle
	Runs      int64
	Completed int64
	Aborted   int64
	Failed    int64
	Rejected  int64
	Closed    bool
}
