package router

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/golang-design/lockfree"
)

// task is the wrapper actually queued on a worker. Its error only feeds
// metrics; results travel through the Via.
type task func(ctx context.Context) error

type worker struct {
	idx      int
	routerID string
	log      *slog.Logger
	metrics  RouterMetrics
	onPanic  OnPanic

	queue   *lockfree.Queue // value: task
	wake    chan struct{}
	stopped atomic.Bool
	done    chan struct{}
	err     error // set before done is closed
}

func newWorker(idx int, cfg *config) *worker {
	return &worker{
		idx:      idx,
		routerID: cfg.id,
		log:      cfg.log.With(slog.Int("worker", idx)),
		metrics:  cfg.metrics,
		onPanic:  cfg.onPanic,
		queue:    lockfree.NewQueue(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// push enqueues t without blocking. It reports false once the worker has
// stopped. A push racing with the stop may still be accepted and then
// dropped.
func (w *worker) push(t task) bool {
	if w.stopped.Load() {
		return false
	}
	w.queue.Enqueue(t)
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// run drains the queue one task at a time until ctx ends or a task panics.
// The returned error is the *PanicError that stopped the worker, if any.
func (w *worker) run(ctx context.Context) error {
	defer close(w.done)
	defer w.stopped.Store(true)

	ctx = withWorkerID(ctx, w.idx)
	w.log.Debug("worker started")

	for {
		for {
			if ctx.Err() != nil {
				w.log.Debug("worker stopped", slog.Uint64("dropped", w.queue.Length()))
				return nil
			}
			v := w.queue.Dequeue()
			if v == nil {
				break
			}
			w.metrics.QueueDepth(w.routerID, w.idx, int(w.queue.Length()))
			if err := w.exec(ctx, v.(task)); err != nil {
				w.err = err
				return err
			}
		}

		select {
		case <-ctx.Done():
		case <-w.wake:
		}
	}
}

func (w *worker) exec(ctx context.Context, t task) (perr error) {
	defer w.metrics.TaskDuration(w.routerID).ObserveDuration()

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			w.metrics.TaskCompleted(w.routerID, false)
			w.metrics.WorkerPanicked(w.routerID, w.idx)
			w.stopped.Store(true)
			w.log.Error("unit of work panicked, worker terminated",
				slog.Any("recovered", r),
				slog.String("stack", string(stack)),
				slog.Uint64("dropped", w.queue.Length()),
			)
			if w.onPanic != nil {
				w.onPanic(w.idx, r, stack)
			}
			perr = &PanicError{Worker: w.idx, Recovered: r, Stack: stack}
		}
	}()

	err := t(ctx)
	w.metrics.TaskCompleted(w.routerID, err == nil)
	return nil
}
