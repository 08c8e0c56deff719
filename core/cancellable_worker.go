package core

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Lifecycle is the state of a CancellableWorker.
//
//	Idle → Started → Running → {Finished | Aborted} → Idle
type Lifecycle int32

const (
	LifecycleIdle Lifecycle = iota
	LifecycleStarted
	LifecycleRunning
	LifecycleAborted
	LifecycleFinished
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleIdle:
		return "idle"
	case LifecycleStarted:
		return "started"
	case LifecycleRunning:
		return "running"
	case LifecycleAborted:
		return "aborted"
	case LifecycleFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// RunOutcome is how a worker run ended.
type RunOutcome int

const (
	RunCompleted RunOutcome = iota
	RunAborted
	RunFailed
)

func (o RunOutcome) String() string {
	switch o {
	case RunCompleted:
		return "completed"
	case RunAborted:
		return "aborted"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FoldFunc performs one step: it folds in into the accumulator. It must not
// mutate acc in place if Out is a reference type shared across runs.
type FoldFunc[In, Out any] func(ctx context.Context, acc Out, in In) (Out, error)

// Pacer runs before each step's checkpoint. step counts from 1.
type Pacer func(ctx context.Context, step int)

// =============================================================================
// Options
// =============================================================================

type WorkerOption func(*workerOptions)

type workerOptions struct {
	name            string
	pacer           Pacer
	checkpointEvery int
	logger          Logger
}

// WithWorkerName labels events and logs. Defaults to "worker".
func WithWorkerName(name string) WorkerOption {
	return func(o *workerOptions) { o.name = name }
}

// WithStepDelay sleeps d before every step, the way the demo simulates slow work.
func WithStepDelay(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d <= 0 {
			o.pacer = nil
			return
		}
		o.pacer = func(ctx context.Context, _ int) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		}
	}
}

// WithRateLimit paces steps with a token bucket shared by every run.
// burst < 1 is treated as 1.
func WithRateLimit(limit rate.Limit, burst int) WorkerOption {
	return func(o *workerOptions) {
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(limit, burst)
		o.pacer = func(ctx context.Context, step int) {
			if err := limiter.Wait(ctx); err != nil && ctx.Err() == nil {
				o.logger.Warn("rate limiter wait failed", F("worker", o.name), F("step", step), F("error", err))
			}
		}
	}
}

// WithPacer installs a custom pacer.
func WithPacer(p Pacer) WorkerOption {
	return func(o *workerOptions) { o.pacer = p }
}

// WithCheckpointEvery checks the cancel flag before step 1 and then every n
// steps. n < 1 is treated as 1 (check before every step).
func WithCheckpointEvery(n int) WorkerOption {
	return func(o *workerOptions) { o.checkpointEvery = n }
}

func WithWorkerLogger(l Logger) WorkerOption {
	return func(o *workerOptions) { o.logger = l }
}

// =============================================================================
// CancellableWorker
// =============================================================================

// CancellableWorker folds a sequence of inputs into one result, one step per
// input, and can be asked to stop between steps. A worker is reusable: after
// each run it returns to Idle.
type CancellableWorker[In, Out any] struct {
	opts    workerOptions
	flag    CancelFlag
	fold    FoldFunc[In, Out]
	initial Out

	lifecycle atomic.Int32
	inRun     atomic.Bool
	runs      atomic.Uint64
}

// NewCancellableWorker creates an Idle worker. Every run starts from initial.
func NewCancellableWorker[In, Out any](initial Out, fold FoldFunc[In, Out], opts ...WorkerOption) *CancellableWorker[In, Out] {
	if fold == nil {
		panic("CancellableWorker: fold must not be nil")
	}
	o := workerOptions{name: "worker", checkpointEvery: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.checkpointEvery < 1 {
		o.checkpointEvery = 1
	}
	o.logger = loggerOrDefault(o.logger)

	return &CancellableWorker[In, Out]{
		opts:    o,
		fold:    fold,
		initial: initial,
	}
}

func (w *CancellableWorker[In, Out]) Name() string { return w.opts.name }

func (w *CancellableWorker[In, Out]) Lifecycle() Lifecycle {
	return Lifecycle(w.lifecycle.Load())
}

// Runs returns how many runs have begun.
func (w *CancellableWorker[In, Out]) Runs() uint64 {
	return w.runs.Load()
}

// RequestCancel sets or clears the cancel flag. Safe from any goroutine at
// any time; a set flag is observed at the next checkpoint.
func (w *CancellableWorker[In, Out]) RequestCancel(cancel bool) {
	if w.flag.Set(cancel) {
		w.opts.logger.Debug("cancel flag changed", F("worker", w.opts.name), F("cancel", cancel))
	}
}

// CancelRequested reports the current flag value.
func (w *CancellableWorker[In, Out]) CancelRequested() bool {
	return w.flag.IsSet()
}

// ResetCancellation clears the flag. Run calls it before emitting started.
func (w *CancellableWorker[In, Out]) ResetCancellation() {
	w.flag.Set(false)
}

func (w *CancellableWorker[In, Out]) setLifecycle(l Lifecycle) {
	w.lifecycle.Store(int32(l))
}

// Run executes one run over input on the calling goroutine and reports to
// sink: started, progress_range, one progress per completed step, then
// result (completed) or error (a step failed) or nothing (aborted), and
// finished last in every case.
//
// Running the same worker concurrently is a programming error and panics.
func (w *CancellableWorker[In, Out]) Run(ctx context.Context, input []In, sink Sink) RunOutcome {
	if !w.inRun.CompareAndSwap(false, true) {
		panic("CancellableWorker: Run called while a run is in progress")
	}
	defer w.inRun.Store(false)

	sink = sinkOrDiscard(sink)
	run := w.runs.Add(1)
	emit := func(ev Event) {
		ev.Source = w.opts.name
		ev.Run = run
		sink.Deliver(ev)
	}

	w.ResetCancellation()
	w.setLifecycle(LifecycleStarted)
	emit(Event{Kind: EventStarted})

	total := len(input)
	emit(Event{Kind: EventProgressRange, Min: 0, Max: total})
	w.setLifecycle(LifecycleRunning)

	acc, outcome, failure := w.iterate(ctx, input, emit)

	switch outcome {
	case RunCompleted:
		emit(Event{Kind: EventResult, Value: acc})
		w.setLifecycle(LifecycleFinished)
	case RunFailed:
		emit(Event{Kind: EventError, Err: failure})
		w.setLifecycle(LifecycleFinished)
	case RunAborted:
		w.setLifecycle(LifecycleAborted)
	}
	w.opts.logger.Debug("worker run ended", F("worker", w.opts.name), F("run", run), F("outcome", outcome))

	emit(Event{Kind: EventFinished})
	w.setLifecycle(LifecycleIdle)
	return outcome
}

func (w *CancellableWorker[In, Out]) iterate(ctx context.Context, input []In, emit func(Event)) (Out, RunOutcome, *TaskError) {
	acc := w.initial
	total := len(input)

	for i, in := range input {
		step := i + 1
		if w.opts.pacer != nil {
			w.opts.pacer(ctx, step)
		}

		// checkpoint
		if i%w.opts.checkpointEvery == 0 && w.flag.IsSet() {
			w.opts.logger.Info("worker aborted", F("worker", w.opts.name), F("step", step), F("total", total))
			return acc, RunAborted, nil
		}

		next, failure := w.step(ctx, acc, in)
		if failure != nil {
			w.opts.logger.Warn("worker step failed", F("worker", w.opts.name), F("step", step), F("error", failure))
			return acc, RunFailed, failure
		}
		acc = next
		emit(Event{Kind: EventProgress, Current: step, Total: total})
	}
	return acc, RunCompleted, nil
}

func (w *CancellableWorker[In, Out]) step(ctx context.Context, acc Out, in In) (next Out, failure *TaskError) {
	defer func() {
		if rec := recover(); rec != nil {
			failure = newPanicError(rec, debug.Stack())
		}
	}()
	next, err := w.fold(ctx, acc, in)
	if err != nil {
		return acc, newTaskError(err)
	}
	return next, nil
}

// =============================================================================
// Multiply
// =============================================================================

// MultiplyFold multiplies the accumulator by each input.
func MultiplyFold(_ context.Context, acc int, v int) (int, error) {
	return acc * v, nil
}

// NewMultiplyWorker returns a worker computing the product of its inputs.
func NewMultiplyWorker(opts ...WorkerOption) *CancellableWorker[int, int] {
	return NewCancellableWorker(1, MultiplyFold, opts...)
}
