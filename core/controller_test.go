package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate blocks the pacer before one chosen step until opened or ctx ends.
type gate struct {
	step   int
	open   chan struct{}
	parked chan struct{}
}

func newGate(step int) *gate {
	return &gate{step: step, open: make(chan struct{}), parked: make(chan struct{}, 1)}
}

func (g *gate) pacer(ctx context.Context, step int) {
	if step != g.step {
		return
	}
	g.parked <- struct{}{}
	select {
	case <-g.open:
	case <-ctx.Done():
	}
}

func (g *gate) waitParked(t *testing.T) {
	t.Helper()
	select {
	case <-g.parked:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker never reached step %d", g.step)
	}
}

type controllerFixture struct {
	ctrl     *Controller[int, int]
	consumer *SingleThreadTaskRunner
	rec      *recorder
}

// newControllerFixture wires a controller whose events are posted to a
// consumer runner, the way a UI thread would receive them.
func newControllerFixture(t *testing.T, opts ...WorkerOption) *controllerFixture {
	t.Helper()
	logger := NewNoOpLogger()
	consumer := NewSingleThreadTaskRunnerWithLogger(logger)
	rec := &recorder{}
	sink := NewRunnerSink(consumer, func(ctx context.Context, ev Event) {
		rec.Deliver(ev)
	})

	worker := NewMultiplyWorker(append([]WorkerOption{WithWorkerLogger(logger)}, opts...)...)
	ctrl := NewController(worker, sink, &ControllerConfig{Name: "multiply", Logger: logger})

	f := &controllerFixture{ctrl: ctrl, consumer: consumer, rec: rec}
	t.Cleanup(func() {
		ctrl.Shutdown()
		consumer.Stop()
	})
	return f
}

func (f *controllerFixture) waitFinished(t *testing.T, runs int) {
	t.Helper()
	eventually(t, func() bool { return f.rec.Count(EventFinished) >= runs }, "run did not finish")
	require.NoError(t, f.consumer.WaitIdle(context.Background()))
}

func values(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// TestController_StopAfterThreeSteps is the ten-step stop scenario
// Given: A ten-step run that parks before step 4
// When: Stop is requested after three progress events
// Then: Progress stops at 3, no result is delivered, finished and state_changed(false) follow
func TestController_StopAfterThreeSteps(t *testing.T) {
	g := newGate(4)
	f := newControllerFixture(t, WithPacer(g.pacer))

	f.ctrl.Start(values(10))
	g.waitParked(t)
	eventually(t, func() bool { return len(f.rec.Progress()) == 3 })
	assert.True(t, f.ctrl.IsRunning())

	f.ctrl.Stop()
	close(g.open)
	f.waitFinished(t, 1)

	assert.Equal(t, []int{1, 2, 3}, f.rec.Progress())
	assert.False(t, f.rec.Has(EventResult))
	assert.False(t, f.ctrl.IsRunning())

	kinds := f.rec.Kinds()
	assert.Equal(t, []EventKind{EventStarted, EventStateChanged, EventProgressRange}, kinds[:3])
	assert.Equal(t, []EventKind{EventFinished, EventStateChanged}, kinds[len(kinds)-2:])
	events := f.rec.Events()
	assert.True(t, events[1].Running)
	assert.False(t, events[len(events)-1].Running)

	stats := f.ctrl.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(1), stats.Aborted)
}

// TestController_RunToCompletion verifies the uncancelled product is delivered
func TestController_RunToCompletion(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Start([]int{1, 2, 3, 4})
	f.waitFinished(t, 1)

	assert.Equal(t, []int{1, 2, 3, 4}, f.rec.Progress())
	require.Equal(t, 1, f.rec.Count(EventResult))
	for _, ev := range f.rec.Events() {
		if ev.Kind == EventResult {
			assert.Equal(t, 24, ev.Value)
		}
		assert.Equal(t, "multiply", ev.Source)
	}
	assert.Equal(t, int64(1), f.ctrl.Stats().Completed)
}

// TestController_StartWhileRunning verifies a second Start is ignored
func TestController_StartWhileRunning(t *testing.T) {
	g := newGate(2)
	f := newControllerFixture(t, WithPacer(g.pacer))

	f.ctrl.Start(values(3))
	f.ctrl.Start(values(5))
	g.waitParked(t)
	f.ctrl.Start(values(5))

	close(g.open)
	f.waitFinished(t, 1)
	require.NoError(t, f.consumer.WaitIdle(context.Background()))

	assert.Equal(t, 1, f.rec.Count(EventStarted))
	assert.Equal(t, []int{1, 2, 3}, f.rec.Progress())
	stats := f.ctrl.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(2), stats.Rejected)
}

// TestController_StopWhileIdle verifies Stop without a run is a no-op
// Given: An idle controller
// When: Stop is called, then a run is started
// Then: No events are emitted by Stop and the run is not affected by it
func TestController_StopWhileIdle(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Stop()
	require.NoError(t, f.consumer.WaitIdle(context.Background()))
	assert.Empty(t, f.rec.Events())

	f.ctrl.Start(values(3))
	f.waitFinished(t, 1)
	assert.Equal(t, []int{1, 2, 3}, f.rec.Progress())
	assert.True(t, f.rec.Has(EventResult))
}

// TestController_StopTwice verifies a repeated Stop has the same effect as one
func TestController_StopTwice(t *testing.T) {
	g := newGate(2)
	f := newControllerFixture(t, WithPacer(g.pacer))

	f.ctrl.Start(values(5))
	g.waitParked(t)
	eventually(t, f.ctrl.IsRunning)
	f.ctrl.Stop()
	f.ctrl.Stop()
	close(g.open)
	f.waitFinished(t, 1)

	assert.Equal(t, []int{1}, f.rec.Progress())
	assert.Equal(t, 1, f.rec.Count(EventFinished))
	assert.Equal(t, int64(1), f.ctrl.Stats().Aborted)
}

// TestController_IsRunningWindow verifies IsRunning is true exactly between started and finished
func TestController_IsRunningWindow(t *testing.T) {
	logger := NewNoOpLogger()
	type sample struct {
		kind    EventKind
		running bool
	}
	samples := make(chan sample, 32)

	var ctrl *Controller[int, int]
	sink := SinkFunc(func(ev Event) {
		samples <- sample{ev.Kind, ctrl.IsRunning()}
	})
	ctrl = NewController(NewMultiplyWorker(WithWorkerLogger(logger)), sink, &ControllerConfig{Logger: logger})
	defer ctrl.Shutdown()

	assert.False(t, ctrl.IsRunning())
	ctrl.Start(values(3))

	for {
		s := <-samples
		switch s.kind {
		case EventFinished:
			assert.False(t, s.running, "finished is delivered after running clears")
		case EventStateChanged:
		default:
			assert.True(t, s.running, "%s delivered while not running", s.kind)
		}
		if s.kind == EventStateChanged && !s.running {
			break
		}
	}
	assert.False(t, ctrl.IsRunning())
	assert.Equal(t, "worker", ctrl.Name())
}

// TestController_ShutdownWhileRunning verifies Shutdown aborts the run and joins the goroutine
func TestController_ShutdownWhileRunning(t *testing.T) {
	g := newGate(3)
	f := newControllerFixture(t, WithPacer(g.pacer))

	f.ctrl.Start(values(10))
	g.waitParked(t)

	done := make(chan struct{})
	go func() {
		f.ctrl.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	f.ctrl.Shutdown()
	assert.False(t, f.ctrl.IsRunning())
	assert.True(t, f.ctrl.Stats().Closed)
	require.NoError(t, f.consumer.WaitIdle(context.Background()))
	assert.Equal(t, []int{1, 2}, f.rec.Progress())
	assert.False(t, f.rec.Has(EventResult))

	f.ctrl.Start(values(2))
	require.NoError(t, f.consumer.WaitIdle(context.Background()))
	assert.Equal(t, 1, f.rec.Count(EventStarted), "Start after Shutdown is ignored")
}

// TestController_RunningOnlyFollowsRealRuns verifies outsiders cannot forge the running state
// Given: An idle controller
// When: It is inspected as a Sink and then started
// Then: It is not a Sink, stays idle until started, and the Start is accepted
func TestController_RunningOnlyFollowsRealRuns(t *testing.T) {
	f := newControllerFixture(t)

	_, isSink := any(f.ctrl).(Sink)
	assert.False(t, isSink, "controller must not accept events from outside its worker")
	assert.False(t, f.ctrl.IsRunning())

	f.ctrl.Start(values(3))
	f.waitFinished(t, 1)

	stats := f.ctrl.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(0), stats.Rejected)
	assert.Equal(t, int64(1), stats.Completed)
	assert.False(t, f.ctrl.IsRunning())
}

func TestController_ShutdownIdle(t *testing.T) {
	f := newControllerFixture(t)
	f.ctrl.Shutdown()
	f.ctrl.Shutdown()
	assert.Equal(t, LifecycleIdle, f.ctrl.Lifecycle())
}

func TestNewController_NilWorker(t *testing.T) {
	assert.Panics(t, func() { NewController[int, int](nil, nil, nil) })
}
