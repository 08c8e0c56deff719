package bgtask_test

import (
	"context"
	"fmt"

	bgtask "github.com/Swind/go-bgtask"
)

// ExampleSubmit demonstrates the global pool with only one import.
func ExampleSubmit() {
	bgtask.InitGlobalPool(2)
	defer bgtask.ShutdownGlobalPool()

	h := bgtask.Submit(func(ctx context.Context) (any, error) {
		return 6 * 7, nil
	})

	v, err := h.Wait(context.Background())
	fmt.Println(v, err, h.State())

	// Output:
	// 42 <nil> succeeded
}

// ExampleController demonstrates a cancellable run reporting to a consumer runner.
func ExampleController() {
	ui := bgtask.NewSingleThreadTaskRunner()
	defer ui.Stop()

	done := make(chan struct{})
	sink := bgtask.NewRunnerSink(ui, func(ctx context.Context, ev bgtask.Event) {
		if ev.Kind == bgtask.EventStateChanged {
			if !ev.Running {
				close(done)
			}
			return
		}
		fmt.Println(ev)
	})

	worker := bgtask.NewMultiplyWorker(bgtask.WithWorkerLogger(bgtask.NewNoOpLogger()))
	ctrl := bgtask.NewController(worker, sink, &bgtask.ControllerConfig{Logger: bgtask.NewNoOpLogger()})
	defer ctrl.Shutdown()

	ctrl.Start([]int{1, 2, 3, 4})
	<-done

	// Output:
	// started
	// progress_range(0, 4)
	// progress(1/4)
	// progress(2/4)
	// progress(3/4)
	// progress(4/4)
	// result(24)
	// finished
}

// ExampleSubmitAndReply demonstrates posting a typed reply onto a consumer runner.
func ExampleSubmitAndReply() {
	pool := bgtask.NewWorkerPool(1)
	defer pool.Shutdown(context.Background())

	ui := bgtask.NewSingleThreadTaskRunner()
	defer ui.Stop()

	done := make(chan struct{})
	bgtask.SubmitAndReply(pool,
		func(ctx context.Context) (int, error) {
			return len("Hello"), nil
		},
		func(ctx context.Context, n int, err error) {
			fmt.Printf("Length: %d\n", n)
			close(done)
		},
		ui,
	)
	<-done

	// Output:
	// Length: 5
}
