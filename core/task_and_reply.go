package core

import "context"

// SubmitAndReply runs task on pool and posts reply with its typed outcome
// onto replyRunner. Exactly one reply is posted per task: (value, nil) on
// success, (zero, *TaskError) on failure.
//
// Example:
//
//	core.SubmitAndReply(
//	    pool,
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	    uiRunner,
//	)
func SubmitAndReply[T any](
	pool *WorkerPool,
	task func(ctx context.Context) (T, error),
	reply func(ctx context.Context, value T, err error),
	replyRunner TaskRunner,
	opts ...SubmitOption,
) *TaskHandle {
	if replyRunner == nil {
		panic("SubmitAndReply: replyRunner must not be nil")
	}

	relay := SinkFunc(func(ev Event) {
		switch ev.Kind {
		case EventResult:
			value, _ := ev.Value.(T)
			replyRunner.PostTask(func(ctx context.Context) {
				reply(ctx, value, nil)
			})
		case EventError:
			failure := ev.Err
			replyRunner.PostTask(func(ctx context.Context) {
				var zero T
				reply(ctx, zero, failure)
			})
		}
	})

	// relay replaces any WithSink in opts
	opts = append(opts, WithSink(relay))
	return pool.Submit(TaskOf(task), opts...)
}
