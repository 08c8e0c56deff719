package core

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ControllerConfig holds optional collaborators of a Controller.
type ControllerConfig struct {
	// Name labels logs, metrics and relayed events. Defaults to the worker name.
	Name    string
	Logger  Logger
	Metrics Metrics
}

// Controller owns one CancellableWorker and the dedicated goroutine it runs
// on. It serializes Start/Stop requests, derives IsRunning from the worker's
// started/finished events and relays every event to the consumer's Sink.
type Controller[In, Out any] struct {
	name    string
	worker  *CancellableWorker[In, Out]
	runner  *SingleThreadTaskRunner
	sink    Sink
	logger  Logger
	metrics Metrics

	// running is derived state: set on started, cleared on finished.
	running atomic.Bool
	// dispatched is held from a successful Start until finished, so two quick
	// Starts cannot queue two runs before the first one reports started.
	dispatched atomic.Bool
	closed     atomic.Bool

	shutdownOnce sync.Once

	runStartedAt atomic.Int64
	runFailed    atomic.Bool

	runs      atomic.Int64
	completed atomic.Int64
	aborted   atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewController starts the dedicated goroutine for worker and returns an idle
// controller. Events reach the consumer only through sink.
func NewController[In, Out any](worker *CancellableWorker[In, Out], sink Sink, config *ControllerConfig) *Controller[In, Out] {
	if worker == nil {
		panic("Controller: worker must not be nil")
	}
	if config == nil {
		config = &ControllerConfig{}
	}

	c := &Controller[In, Out]{
		name:    config.Name,
		worker:  worker,
		sink:    sinkOrDiscard(sink),
		logger:  loggerOrDefault(config.Logger),
		metrics: config.Metrics,
	}
	if c.name == "" {
		c.name = worker.Name()
	}
	if c.metrics == nil {
		c.metrics = &NilMetrics{}
	}

	c.runner = NewSingleThreadTaskRunnerWithLogger(c.logger)
	c.runner.SetName(c.name + "-thread")
	return c
}

func (c *Controller[In, Out]) Name() string { return c.name }

// IsRunning is true strictly between the worker's started and finished.
func (c *Controller[In, Out]) IsRunning() bool {
	return c.running.Load()
}

// Lifecycle returns the worker's current lifecycle state.
func (c *Controller[In, Out]) Lifecycle() Lifecycle {
	return c.worker.Lifecycle()
}

// Start dispatches a run over input to the worker goroutine and returns
// immediately. While a run is dispatched or running, Start is a logged no-op.
func (c *Controller[In, Out]) Start(input []In) {
	if c.closed.Load() {
		c.rejected.Add(1)
		c.logger.Warn("start ignored: controller is shut down", F("controller", c.name))
		return
	}
	if c.running.Load() || !c.dispatched.CompareAndSwap(false, true) {
		c.rejected.Add(1)
		c.logger.Warn("start ignored: already running", F("controller", c.name))
		return
	}

	c.worker.ResetCancellation()
	values := slices.Clone(input)
	c.runner.PostTask(func(ctx context.Context) {
		if c.closed.Load() {
			c.dispatched.Store(false)
			return
		}
		c.worker.Run(ctx, values, controllerSink[In, Out]{c})
	})
	c.logger.Debug("run dispatched", F("controller", c.name), F("steps", len(values)))
}

// Stop requests cancellation of the current run and returns without waiting.
// When nothing is running it is a logged no-op.
func (c *Controller[In, Out]) Stop() {
	if !c.running.Load() {
		c.logger.Info("stop ignored: not running", F("controller", c.name))
		return
	}
	if c.worker.CancelRequested() {
		c.logger.Debug("stop ignored: cancellation already requested", F("controller", c.name))
		return
	}
	c.worker.RequestCancel(true)
	c.logger.Info("stop requested", F("controller", c.name))
}

// Shutdown requests cancellation if a run is active, stops the dedicated
// goroutine and blocks until it has exited. It has no timeout: a step that
// never returns blocks Shutdown forever. Safe to call repeatedly.
func (c *Controller[In, Out]) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.closed.Store(true)
		if c.running.Load() || c.dispatched.Load() {
			c.worker.RequestCancel(true)
		}
		c.runner.Stop()
		c.logger.Debug("controller shut down", F("controller", c.name))
	})
}

// controllerSink feeds the worker's events back into its controller. It is
// only handed to the worker, so nothing else can drive the running state.
type controllerSink[In, Out any] struct {
	c *Controller[In, Out]
}

func (s controllerSink[In, Out]) Deliver(ev Event) { s.c.deliver(ev) }

// deliver receives the worker's events on the worker goroutine, updates the
// derived running state and relays them to the consumer sink.
func (c *Controller[In, Out]) deliver(ev Event) {
	ev.Source = c.name

	switch ev.Kind {
	case EventStarted:
		c.runs.Add(1)
		c.runStartedAt.Store(time.Now().UnixNano())
		c.running.Store(true)
		// A Shutdown that raced with this run's cancel-flag reset.
		if c.closed.Load() {
			c.worker.RequestCancel(true)
		}
		c.sink.Deliver(ev)
		c.sink.Deliver(Event{Kind: EventStateChanged, Source: c.name, Run: ev.Run, Running: true})

	case EventFinished:
		outcome := c.recordOutcome()
		c.running.Store(false)
		c.dispatched.Store(false)
		c.sink.Deliver(ev)
		c.sink.Deliver(Event{Kind: EventStateChanged, Source: c.name, Run: ev.Run, Running: false})
		c.logger.Debug("run finished", F("controller", c.name), F("run", ev.Run), F("outcome", outcome))

	case EventError:
		c.runFailed.Store(true)
		c.sink.Deliver(ev)

	default:
		c.sink.Deliver(ev)
	}
}

func (c *Controller[In, Out]) recordOutcome() RunOutcome {
	var outcome RunOutcome
	switch {
	case c.runFailed.Swap(false):
		outcome = RunFailed
		c.failed.Add(1)
	case c.worker.Lifecycle() == LifecycleAborted:
		outcome = RunAborted
		c.aborted.Add(1)
	default:
		outcome = RunCompleted
		c.completed.Add(1)
	}
	started := time.Unix(0, c.runStartedAt.Load())
	c.metrics.RecordWorkerRun(c.name, outcome, time.Since(started))
	return outcome
}

// Stats returns current observability data for this controller.
func (c *Controller[In, Out]) Stats() ControllerStats {
	return ControllerStats{
		Name:      c.name,
		Running:   c.running.Load(),
		Lifecycle: c.worker.Lifecycle(),
		Runs:      c.runs.Load(),
		Completed: c.completed.Load(),
		Aborted:   c.aborted.Load(),
		Failed:    c.failed.Load(),
		Rejected:  c.rejected.Load(),
		Closed:    c.closed.Load(),
	}
}
