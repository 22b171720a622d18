package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/codewandler/ert-go/internal/shard"
)

// Keyer is implemented by keys that provide their own routing string. Such
// keys route identically in every process sharing a seed.
type Keyer = shard.Keyer

// ErrNoWorkers is returned when a router is configured without workers.
var ErrNoWorkers = errors.New("router needs at least one worker")

// ErrWorkerPanicked is matched by the error Wait returns when a unit of work
// panicked and terminated its worker.
var ErrWorkerPanicked = errors.New("unit of work panicked")

// PanicError records the panic that terminated a worker.
type PanicError struct {
	Worker    int
	Recovered any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %d: unit of work panicked: %v", e.Worker, e.Recovered)
}

func (e *PanicError) Unwrap() error { return ErrWorkerPanicked }

// Router owns a fixed pool of sequential workers and dispatches keyed work
// onto them. A *Router may be shared freely; all holders address the same
// workers.
type Router struct {
	id      string
	log     *slog.Logger
	metrics RouterMetrics
	hasher  *shard.Hasher
	workers []*worker

	running atomic.Int32
	cancel  context.CancelFunc
	wait    func() error

	doneOnce sync.Once
	done     chan struct{}
}

// New creates a router with the given number of workers. The workers run
// on the configured Executor until ctx is cancelled or Close is called.
func New(ctx context.Context, workers int, opts ...Option) (*Router, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoWorkers, workers)
	}
	cfg := newConfig(opts)
	ctx, cancel := context.WithCancel(ctx)
	r := newRouter(cfg, workers, cancel)
	r.start(ctx, func(run func() error) {
		cfg.exec.Go(func() { _ = run() })
	})
	return r, nil
}

// MustNew is like New but panics on error.
func MustNew(ctx context.Context, workers int, opts ...Option) *Router {
	r, err := New(ctx, workers, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// NewDetached creates a router that owns its execution substrate, so no
// caller context is needed. It runs until Close is called. The worker loops
// run on an errgroup whose first error is what Wait reports.
func NewDetached(workers int, opts ...Option) (*Router, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoWorkers, workers)
	}
	cfg := newConfig(opts)
	ctx, cancel := context.WithCancel(context.Background())
	r := newRouter(cfg, workers, cancel)

	var g errgroup.Group
	r.wait = g.Wait
	r.start(ctx, g.Go)
	return r, nil
}

func newRouter(cfg *config, workers int, cancel context.CancelFunc) *Router {
	r := &Router{
		id:      cfg.id,
		log:     cfg.log.With(slog.String("router", cfg.id)),
		metrics: cfg.metrics,
		hasher:  shard.NewHasher(cfg.seed),
		workers: make([]*worker, workers),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	wcfg := *cfg
	wcfg.log = r.log
	for i := range r.workers {
		r.workers[i] = newWorker(i, &wcfg)
	}
	r.wait = r.waitErr
	return r
}

// start spawns every worker loop through spawn.
func (r *Router) start(ctx context.Context, spawn func(run func() error)) {
	r.running.Store(int32(len(r.workers)))
	r.metrics.WorkersRunning(r.id, len(r.workers))
	r.log.Debug("starting router", slog.Int("workers", len(r.workers)))

	for _, w := range r.workers {
		spawn(func() error {
			defer func() {
				r.metrics.WorkersRunning(r.id, int(r.running.Add(-1)))
			}()
			return w.run(ctx)
		})
	}
}

func (r *Router) waitWorkers() {
	for _, w := range r.workers {
		<-w.done
	}
}

// waitErr waits for all workers and returns the lowest-indexed panic.
func (r *Router) waitErr() error {
	r.waitWorkers()
	for _, w := range r.workers {
		if w.err != nil {
			return w.err
		}
	}
	return nil
}

// ID returns the router's name.
func (r *Router) ID() string { return r.id }

// Len returns the number of workers.
func (r *Router) Len() int { return len(r.workers) }

// Close stops all workers. Work still queued is dropped and its Vias never
// resolve. Close does not wait; use Wait for that.
func (r *Router) Close() {
	r.cancel()
}

// Wait blocks until every worker has stopped. It returns a *PanicError if a
// unit of work terminated a worker, and nil otherwise. It must not be called
// from a unit of work.
func (r *Router) Wait() error {
	return r.wait()
}

// Done is closed once every worker has stopped.
func (r *Router) Done() <-chan struct{} {
	r.doneOnce.Do(func() {
		go func() {
			r.waitWorkers()
			close(r.done)
		}()
	})
	return r.done
}

func (r *Router) index(sum uint64) int {
	return shard.Index(sum, len(r.workers))
}

func (r *Router) dispatch(idx int, t task) {
	if !r.workers[idx].push(t) {
		r.log.Warn("worker is not running; the submitted work will never run", slog.Int("worker", idx))
		r.metrics.DeliveryFailed(r.id)
		return
	}
	r.metrics.TaskSubmitted(r.id, idx)
}

// WorkerFor returns the index of the worker key is routed to. The mapping is
// fixed for the lifetime of r. Like a map key, a K of interface type must hold
// a comparable dynamic value; a slice or map inside one panics here.
func WorkerFor[K comparable](r *Router, key K) int {
	return r.index(shard.Sum(r.hasher, key))
}

// Submit enqueues fn on the worker owning key and returns immediately. All
// submissions with the same key on the same router run in submission order,
// one at a time. fn receives a context carrying the worker identity. Keys
// follow the same rules as for WorkerFor.
func Submit[K comparable, T any](r *Router, key K, fn func(ctx context.Context) (T, error)) *Via[T] {
	v := newVia[T]()
	r.dispatch(WorkerFor(r, key), func(ctx context.Context) error {
		val, err := fn(ctx)
		v.deliver(val, err)
		return err
	})
	return v
}

// Go is like Submit for work whose outcome nobody waits for.
func Go[K comparable](r *Router, key K, fn func(ctx context.Context) error) {
	r.dispatch(WorkerFor(r, key), task(fn))
}
