package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-bgtask/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// ControllerSnapshotProvider provides current controller stats snapshots.
type ControllerSnapshotProvider interface {
	Stats() core.ControllerStats
}

// SnapshotPoller periodically exports pool/controller Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	controllersMu sync.RWMutex
	controllers   map[string]ControllerSnapshotProvider

	poolQueued   *prom.GaugeVec
	poolActive   *prom.GaugeVec
	poolCapacity *prom.GaugeVec
	poolTasks    *prom.GaugeVec
	poolClosed   *prom.GaugeVec

	controllerRunning *prom.GaugeVec
	controllerRuns    *prom.GaugeVec
	controllerClosed  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "bgtask",
		Name:      "pool_queued",
		Help:      "Queued tasks per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "bgtask",
		Name:      "pool_active",
		Help:      "Running tasks per pool.",
	}, []string{"pool"})
	poolCapacity := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "bgtask",
		Name:      "pool_capacity",
		Help:      "Slot count per pool.",
	}, []string{"pool"})
	poolTasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "bgtask",
		Name:      "pool_tasks",
		Help:      "Pool task count snapshot by outcome.",
	}, []string{"pool", "outcome"})
	poolClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "bgtask",
		Name:      "pool_closed",
		Help:      "Pool closed state (1=closed, 0=open).",
	}, []string{"pool"})

	controllerRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "bgtask",
		Name:      "controller_running",
		Help:      "Controller running state (1=running, 0=idle).",
	}, []string{"controller"})
	controllerRuns := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "bgtask",
		Name:      "controller_runs",
		Help:      "Controller run count snapshot by outcome.",
	}, []string{"controller", "outcome"})
	controllerClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "bgtask",
		Name:      "controller_closed",
		Help:      "Controller shut down state (1=closed, 0=open).",
	}, []string{"controller"})

	var err error
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolCapacity, err = registerCollector(reg, poolCapacity); err != nil {
		return nil, err
	}
	if poolTasks, err = registerCollector(reg, poolTasks); err != nil {
		return nil, err
	}
	if poolClosed, err = registerCollector(reg, poolClosed); err != nil {
		return nil, err
	}
	if controllerRunning, err = registerCollector(reg, controllerRunning); err != nil {
		return nil, err
	}
	if controllerRuns, err = registerCollector(reg, controllerRuns); err != nil {
		return nil, err
	}
	if controllerClosed, err = registerCollector(reg, controllerClosed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:          interval,
		pools:             make(map[string]PoolSnapshotProvider),
		controllers:       make(map[string]ControllerSnapshotProvider),
		poolQueued:        poolQueued,
		poolActive:        poolActive,
		poolCapacity:      poolCapacity,
		poolTasks:         poolTasks,
		poolClosed:        poolClosed,
		controllerRunning: controllerRunning,
		controllerRuns:    controllerRuns,
		controllerClosed:  controllerClosed,
	}, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddController adds or replaces a controller snapshot provider by name.
func (p *SnapshotPoller) AddController(name string, provider ControllerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "controller")
	p.controllersMu.Lock()
	p.controllers[name] = provider
	p.controllersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce copies every registered snapshot into the gauges.
func (p *SnapshotPoller) CollectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolCapacity.WithLabelValues(name).Set(float64(stats.Capacity))
		p.poolTasks.WithLabelValues(name, "submitted").Set(float64(stats.Submitted))
		p.poolTasks.WithLabelValues(name, "succeeded").Set(float64(stats.Succeeded))
		p.poolTasks.WithLabelValues(name, "failed").Set(float64(stats.Failed))
		p.poolTasks.WithLabelValues(name, "rejected").Set(float64(stats.Rejected))
		p.poolClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.poolsMu.RUnlock()

	p.controllersMu.RLock()
	for name, provider := range p.controllers {
		stats := provider.Stats()
		p.controllerRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.controllerRuns.WithLabelValues(name, "started").Set(float64(stats.Runs))
		p.controllerRuns.WithLabelValues(name, core.RunCompleted.String()).Set(float64(stats.Completed))
		p.controllerRuns.WithLabelValues(name, core.RunAborted.String()).Set(float64(stats.Aborted))
		p.controllerRuns.WithLabelValues(name, core.RunFailed.String()).Set(float64(stats.Failed))
		p.controllerRuns.WithLabelValues(name, "rejected").Set(float64(stats.Rejected))
		p.controllerClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.controllersMu.RUnlock()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
