package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Swind/go-bgtask/config"
	"github.com/Swind/go-bgtask/core"
	bgprom "github.com/Swind/go-bgtask/observability/prometheus"
)

// session carries what one demo needs: where to print, how to log and
// where to report metrics. poller may be nil.
type session struct {
	out     io.Writer
	cfg     config.Config
	logger  core.Logger
	metrics core.Metrics
	poller  *bgprom.SnapshotPoller
}

func (a *app) session(out io.Writer) session {
	return session{out: out, cfg: a.cfg, logger: a.logger}
}

// lockedWriter serializes writes from the consumer runners of concurrent demos.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type poolOptions struct {
	tasks int
	sleep time.Duration
	fail  bool
}

func newPoolCmd(a *app) *cobra.Command {
	opts := poolOptions{}
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Run sleeping tasks (and one failing task) on a capacity-limited pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPool(cmd.Context(), a.session(cmd.OutOrStdout()), opts)
		},
	}
	cmd.Flags().IntVar(&opts.tasks, "tasks", 3, "number of sleeping tasks to submit")
	cmd.Flags().DurationVar(&opts.sleep, "sleep", time.Second, "how long each task sleeps")
	cmd.Flags().BoolVar(&opts.fail, "fail", true, "also submit a task that divides by zero")
	return cmd
}

// runPool submits the tasks, prints every event on a consumer runner and
// waits for all of them before shutting the pool down.
func runPool(ctx context.Context, s session, opts poolOptions) error {
	ui := core.NewSingleThreadTaskRunnerWithLogger(s.logger)
	ui.SetName("pool-ui")
	defer ui.Stop()

	pool := core.NewWorkerPoolWithConfig(s.cfg.PoolConfig(s.logger, s.metrics))
	s.poller.AddPool(pool.Name(), pool)

	printer := func(name string) core.Sink {
		return core.NewRunnerSink(ui, func(ctx context.Context, ev core.Event) {
			fmt.Fprintf(s.out, "[%s] %-16s %s\n", pool.Name(), name, ev)
		})
	}

	var handles []*core.TaskHandle
	for i := range opts.tasks {
		name := fmt.Sprintf("sleep-%d", i+1)
		handles = append(handles, pool.Submit(core.Bind(sleepFor, opts.sleep), core.WithName(name), core.WithSink(printer(name))))
	}
	if opts.fail {
		handles = append(handles, pool.Submit(core.Bind(divide, 0), core.WithName("divide-by-zero"), core.WithSink(printer("divide-by-zero"))))
	}

	for _, h := range handles {
		if _, err := h.Wait(ctx); err != nil && ctx.Err() != nil {
			pool.Stop()
			return ctx.Err()
		}
	}
	if err := pool.Shutdown(ctx); err != nil {
		return err
	}
	if err := ui.WaitIdle(ctx); err != nil {
		return err
	}

	st := pool.Stats()
	fmt.Fprintf(s.out, "[%s] submitted=%d succeeded=%d failed=%d\n", st.Name, st.Submitted, st.Succeeded, st.Failed)
	return nil
}

func sleepFor(ctx context.Context, d time.Duration) (string, error) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return fmt.Sprintf("slept %s", d), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func divide(_ context.Context, d int) (int, error) {
	return 100 / d, nil
}
