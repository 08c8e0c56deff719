package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Swind/go-bgtask/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("bgtask", reg, ExporterOptions{})
	require.NoError(t, err)

	exporter.RecordTaskDuration("pool-a", core.TaskSucceeded, 250*time.Millisecond)
	exporter.RecordTaskPanic("pool-a", "panic")
	exporter.RecordQueueDepth("pool-a", 7)
	exporter.RecordTaskRejected("pool-a", "closed")
	exporter.RecordWorkerRun("multiply", core.RunAborted, 3*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("pool-a")))
	assert.Equal(t, float64(7), testutil.ToFloat64(exporter.queueDepth.WithLabelValues("pool-a")))
	assert.Equal(t, float64(1), testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("pool-a", "closed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(exporter.workerRunsTotal.WithLabelValues("multiply", "aborted")))

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("pool-a", "succeeded"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)

	runCount, err := histogramSampleCount(exporter.workerRunSeconds.WithLabelValues("multiply", "aborted"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), runCount)
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("bgtask", reg, ExporterOptions{})
	require.NoError(t, err)
	second, err := NewMetricsExporter("bgtask", reg, ExporterOptions{})
	require.NoError(t, err)

	first.RecordTaskPanic("pool-a", nil)
	second.RecordTaskPanic("pool-a", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("pool-a")))
}

func TestMetricsExporter_NilSafe(t *testing.T) {
	var exporter *MetricsExporter
	assert.NotPanics(t, func() {
		exporter.RecordTaskDuration("p", core.TaskFailed, time.Second)
		exporter.RecordWorkerRun("c", core.RunCompleted, time.Second)
	})
}

// TestMetricsExporter_WiredIntoPoolAndController verifies the exporter receives core events
// Given: A pool and a controller configured with the exporter
// When: A task fails and a worker run completes
// Then: The failure is counted by state and the run by outcome
func TestMetricsExporter_WiredIntoPoolAndController(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	require.NoError(t, err)

	logger := core.NewNoOpLogger()
	cfg := core.DefaultWorkerPoolConfig(1)
	cfg.Name = "io"
	cfg.Logger = logger
	cfg.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: logger}
	cfg.Metrics = exporter
	pool := core.NewWorkerPoolWithConfig(cfg)

	h := pool.Submit(func(ctx context.Context) (any, error) { return nil, errors.New("boom") })
	<-h.Done()
	require.NoError(t, pool.Shutdown(context.Background()))

	finished := make(chan struct{})
	sink := core.SinkFunc(func(ev core.Event) {
		if ev.Kind == core.EventStateChanged && !ev.Running {
			close(finished)
		}
	})
	ctrl := core.NewController(
		core.NewMultiplyWorker(core.WithWorkerLogger(logger)),
		sink,
		&core.ControllerConfig{Name: "multiply", Logger: logger, Metrics: exporter},
	)
	defer ctrl.Shutdown()
	ctrl.Start([]int{2, 3})
	<-finished

	count, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("io", "failed"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, float64(1), testutil.ToFloat64(exporter.workerRunsTotal.WithLabelValues("multiply", "completed")))

	assert.Zero(t, testutil.CollectAndCount(exporter.taskPanicTotal), "no task panicked")
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
