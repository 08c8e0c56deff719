// Package bgtask runs work in the background without blocking the caller and
// reports back to the caller's own execution context.
//
// It offers two facilities:
//
//   - A bounded WorkerPool. Submit returns a TaskHandle at once; at most
//     Capacity tasks run at a time, oldest first. Each task ends with exactly
//     one result or error event followed by finished. A panicking task is
//     contained and the pool stays usable.
//   - A Controller that owns one long-lived CancellableWorker on a dedicated
//     goroutine. Start and Stop never block; the worker folds its input one
//     step at a time, reports progress per step and stops at the next
//     checkpoint once cancellation is requested.
//
// # Quick Start
//
// Initialize the global pool at application startup:
//
//	bgtask.InitGlobalPool(4)
//	defer bgtask.ShutdownGlobalPool()
//
//	h := bgtask.GetGlobalPool().Submit(func(ctx context.Context) (any, error) {
//		return fetch(ctx)
//	})
//
// # Consumer context
//
// Notifications never call into consumer code on a background goroutine unless
// the consumer asks for it. A Sink decides how events cross over:
// NewRunnerSink posts them onto a SingleThreadTaskRunner (the consumer's
// "main thread"), NewChanSink queues them on a bounded channel, and SinkFunc
// calls a function inline.
//
// # Example
//
//	ui := bgtask.NewSingleThreadTaskRunner()
//	defer ui.Stop()
//
//	sink := bgtask.NewRunnerSink(ui, func(ctx context.Context, ev bgtask.Event) {
//		fmt.Println(ev)
//	})
//	ctrl := bgtask.NewController(bgtask.NewMultiplyWorker(), sink, nil)
//	defer ctrl.Shutdown()
//
//	ctrl.Start([]int{1, 2, 3, 4})
//	// ... later, from any goroutine
//	ctrl.Stop()
package bgtask
