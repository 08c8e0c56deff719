package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Swind/go-bgtask/core"
)

type multiplyOptions struct {
	values    []int
	stopAfter int
}

func newMultiplyCmd(a *app) *cobra.Command {
	opts := multiplyOptions{}
	cmd := &cobra.Command{
		Use:   "multiply",
		Short: "Multiply values on a cancellable worker, one step per value",
		Long: "Multiply values on a cancellable worker, one step per value.\n" +
			"Interrupt (Ctrl-C) or --stop-after requests cancellation; the worker stops before its next step.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMultiply(cmd.Context(), a.session(cmd.OutOrStdout()), opts)
		},
	}
	cmd.Flags().IntSliceVar(&opts.values, "values", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, "values to multiply")
	cmd.Flags().IntVar(&opts.stopAfter, "stop-after", 0, "request stop once this many steps have completed (0 = never)")
	return cmd
}

// runMultiply starts one controller run and prints its events from a
// consumer runner until the run has finished.
func runMultiply(ctx context.Context, s session, opts multiplyOptions) error {
	ui := core.NewSingleThreadTaskRunnerWithLogger(s.logger)
	ui.SetName("multiply-ui")
	defer ui.Stop()

	var ctrl *core.Controller[int, int]
	done := make(chan struct{})
	sink := core.NewRunnerSink(ui, func(_ context.Context, ev core.Event) {
		switch ev.Kind {
		case core.EventStateChanged:
			fmt.Fprintf(s.out, "[%s] running=%t\n", ev.Source, ev.Running)
			if !ev.Running {
				close(done)
			}
			return
		case core.EventProgress:
			if opts.stopAfter > 0 && ev.Current == opts.stopAfter {
				ctrl.Stop()
			}
		}
		fmt.Fprintf(s.out, "[%s] %s\n", ev.Source, ev)
	})

	worker := core.NewMultiplyWorker(s.cfg.WorkerOptions(s.logger)...)
	ctrl = core.NewController(worker, sink, &core.ControllerConfig{
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	defer ctrl.Shutdown()
	s.poller.AddController(ctrl.Name(), ctrl)

	ctrl.Start(opts.values)
	select {
	case <-done:
	case <-ctx.Done():
		// aborts a run in progress, or one that has not reported started yet
		ctrl.Shutdown()
		if err := ui.WaitIdle(context.Background()); err != nil {
			return err
		}
	}

	st := ctrl.Stats()
	fmt.Fprintf(s.out, "[%s] runs=%d completed=%d aborted=%d failed=%d\n", st.Name, st.Runs, st.Completed, st.Aborted, st.Failed)
	return nil
}
