package core

import (
	"context"
	"fmt"
)

// EventKind enumerates the notifications the core sends to consumers.
type EventKind int

const (
	// EventStarted is emitted by a CancellableWorker when a run begins.
	EventStarted EventKind = iota
	// EventProgressRange announces the bounds of the progress that follows.
	EventProgressRange
	EventProgress
	EventResult
	EventError
	// EventFinished is always the last event of a task or worker run.
	EventFinished
	// EventStateChanged is emitted by a Controller when IsRunning flips.
	EventStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgressRange:
		return "progress_range"
	case EventProgress:
		return "progress"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventFinished:
		return "finished"
	case EventStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// Event is an immutable notification payload. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind

	// Source names the pool or controller that emitted the event.
	Source string
	// TaskID is set for events of pool tasks.
	TaskID TaskID
	// Run numbers the controller/worker run, starting at 1.
	Run uint64

	Current int
	Total   int
	Min     int
	Max     int

	Value   any
	Err     *TaskError
	Running bool
}

func (e Event) String() string {
	switch e.Kind {
	case EventProgressRange:
		return fmt.Sprintf("%s(%d, %d)", e.Kind, e.Min, e.Max)
	case EventProgress:
		return fmt.Sprintf("%s(%d/%d)", e.Kind, e.Current, e.Total)
	case EventResult:
		return fmt.Sprintf("%s(%v)", e.Kind, e.Value)
	case EventError:
		return fmt.Sprintf("%s(%v)", e.Kind, e.Err)
	case EventStateChanged:
		return fmt.Sprintf("%s(running=%t)", e.Kind, e.Running)
	default:
		return e.Kind.String()
	}
}

// =============================================================================
// Sinks: how events cross from a background goroutine to the consumer
// =============================================================================

// Sink receives events from the goroutine that produced them. Implementations
// decide how the event reaches the consumer's own execution context.
type Sink interface {
	Deliver(ev Event)
}

// EventHandler consumes an event on the consumer's execution context.
type EventHandler func(ctx context.Context, ev Event)

// RunnerSink posts every event onto a consumer TaskRunner, so the handler
// only ever runs on that runner's goroutine.
type RunnerSink struct {
	runner  TaskRunner
	handler EventHandler
}

func NewRunnerSink(runner TaskRunner, handler EventHandler) *RunnerSink {
	if runner == nil {
		panic("RunnerSink: runner must not be nil")
	}
	if handler == nil {
		panic("RunnerSink: handler must not be nil")
	}
	return &RunnerSink{runner: runner, handler: handler}
}

func (s *RunnerSink) Deliver(ev Event) {
	s.runner.PostTask(func(ctx context.Context) {
		s.handler(ctx, ev)
	})
}

// ChanSink queues events on a bounded channel. Deliver blocks while the
// channel is full, so the consumer must keep draining Events.
type ChanSink struct {
	ch chan Event
}

func NewChanSink(buffer int) *ChanSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanSink{ch: make(chan Event, buffer)}
}

func (s *ChanSink) Deliver(ev Event) {
	s.ch <- ev
}

func (s *ChanSink) Events() <-chan Event {
	return s.ch
}

// SinkFunc invokes the function on the producing goroutine. Use it only when
// the consumer synchronizes on its own.
type SinkFunc func(ev Event)

func (f SinkFunc) Deliver(ev Event) {
	f(ev)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Deliver(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Deliver(ev)
		}
	}
}

type discardSink struct{}

func (discardSink) Deliver(Event) {}

func sinkOrDiscard(s Sink) Sink {
	if s == nil {
		return discardSink{}
	}
	return s
}
