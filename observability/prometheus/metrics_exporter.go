package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-bgtask/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	// RunBuckets are used for whole worker runs, which last much longer than tasks.
	RunBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
	workerRunSeconds    *prom.HistogramVec
	workerRunsTotal     *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "bgtask"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	runBuckets := opts.RunBuckets
	if len(runBuckets) == 0 {
		runBuckets = prom.ExponentialBuckets(0.1, 2, 10)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Pool task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"pool", "state"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"pool"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected or discarded tasks.",
	}, []string{"pool", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Tasks waiting for a free slot.",
	}, []string{"pool"})
	runSecondsVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_run_duration_seconds",
		Help:      "Cancellable worker run duration in seconds.",
		Buckets:   runBuckets,
	}, []string{"controller", "outcome"})
	runsTotalVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "worker_runs_total",
		Help:      "Total number of cancellable worker runs by outcome.",
	}, []string{"controller", "outcome"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if runSecondsVec, err = registerCollector(reg, runSecondsVec); err != nil {
		return nil, err
	}
	if runsTotalVec, err = registerCollector(reg, runsTotalVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		workerRunSeconds:    runSecondsVec,
		workerRunsTotal:     runsTotalVec,
	}, nil
}

// RecordTaskDuration records task execution duration by final state.
func (m *MetricsExporter) RecordTaskDuration(poolName string, state core.TaskState, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(poolName, "unknown"), state.String()).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(poolName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(poolName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(poolName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(poolName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordWorkerRun records one controller-driven worker run.
func (m *MetricsExporter) RecordWorkerRun(controllerName string, outcome core.RunOutcome, duration time.Duration) {
	if m == nil {
		return
	}
	name := normalizeLabel(controllerName, "unknown")
	m.workerRunSeconds.WithLabelValues(name, outcome.String()).Observe(duration.Seconds())
	m.workerRunsTotal.WithLabelValues(name, outcome.String()).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
