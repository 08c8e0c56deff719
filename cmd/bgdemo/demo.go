package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-bgtask/core"
	bgprom "github.com/Swind/go-bgtask/observability/prometheus"
)

type demoOptions struct {
	pool        poolOptions
	multiply    multiplyOptions
	metricsAddr string
	linger      time.Duration
}

func newDemoCmd(a *app) *cobra.Command {
	opts := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the pool and multiply demos together, optionally serving /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session(&lockedWriter{w: cmd.OutOrStdout()})
			if opts.metricsAddr != "" {
				s.cfg.Metrics.Enabled = true
				s.cfg.Metrics.Addr = opts.metricsAddr
			}
			return runDemo(cmd.Context(), s, opts)
		},
	}
	cmd.Flags().IntVar(&opts.pool.tasks, "tasks", 3, "number of sleeping pool tasks")
	cmd.Flags().DurationVar(&opts.pool.sleep, "sleep", time.Second, "how long each pool task sleeps")
	cmd.Flags().BoolVar(&opts.pool.fail, "fail", true, "also submit a task that divides by zero")
	cmd.Flags().IntSliceVar(&opts.multiply.values, "values", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, "values to multiply")
	cmd.Flags().IntVar(&opts.multiply.stopAfter, "stop-after", 0, "request stop once this many steps have completed (0 = never)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.linger, "linger", 0, "keep serving metrics this long after the demos finish")
	return cmd
}

// runDemo runs both demos concurrently. With metrics enabled the pool and
// controller report through an exporter and a snapshot poller, served over
// HTTP until the demos are done.
func runDemo(ctx context.Context, s session, opts demoOptions) error {
	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if s.cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())

		exporter, err := bgprom.NewMetricsExporter(s.cfg.Metrics.Namespace, reg, bgprom.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		poller, err := bgprom.NewSnapshotPoller(reg, s.cfg.Metrics.PollInterval)
		if err != nil {
			return fmt.Errorf("snapshot poller: %w", err)
		}
		poller.Start(gctx)
		defer poller.Stop()
		s.metrics = exporter
		s.poller = poller

		ln, err := net.Listen("tcp", s.cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		s.logger.Info("serving metrics", core.F("addr", ln.Addr().String()))

		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	var demos errgroup.Group
	demos.Go(func() error { return runPool(gctx, s, opts.pool) })
	demos.Go(func() error { return runMultiply(gctx, s, opts.multiply) })

	g.Go(func() error {
		err := demos.Wait()
		if srv == nil {
			return err
		}
		if err == nil && opts.linger > 0 {
			select {
			case <-time.After(opts.linger):
			case <-gctx.Done():
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(err, srv.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
