package router

import "context"

type workerIDKey struct{}

func withWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerIDKey{}, id)
}

// CurrentWorker reports the index of the worker running ctx's unit of work.
// ok is false when ctx does not belong to a worker.
func CurrentWorker(ctx context.Context) (id int, ok bool) {
	id, ok = ctx.Value(workerIDKey{}).(int)
	return id, ok
}

// WorkerID returns the index of the worker running ctx's unit of work, or 0
// outside of any worker.
func WorkerID(ctx context.Context) int {
	id, _ := CurrentWorker(ctx)
	return id
}
