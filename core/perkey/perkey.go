// Package perkey provides a blocking call API that serializes work per key
// while allowing work for different keys to execute concurrently.
//
// It is a thin layer over [router.Router]: each call is submitted under its
// key and the caller waits for the result. Typical use-case: handlers that
// must process commands for one entity sequentially but may serve different
// entities in parallel.
package perkey

import (
	"context"
	"fmt"
	"sync"

	"github.com/codewandler/ert-go/core/router"
)

// Option configures a Scheduler.
type Option func(*config)

type config struct {
	router  *router.Router
	workers int
}

// WithRouter runs tasks on r. The Scheduler does not close a router it was
// given.
func WithRouter(r *router.Router) Option {
	return func(c *config) {
		if r != nil {
			c.router = r
		}
	}
}

// WithWorkers sizes the private router created when no router is given
// (default: 64).
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// Scheduler runs tasks (functions) such that for any given key K,
// tasks are executed sequentially, in submission order.
// Tasks for *different* keys can proceed in parallel.
type Scheduler[K comparable] struct {
	mu     sync.Mutex
	r      *router.Router
	owned  bool
	closed bool
	wg     sync.WaitGroup // tracks in-flight Do operations
}

// New creates a new Scheduler.
func New[K comparable](opts ...Option) *Scheduler[K] {
	cfg := &config{workers: 64}
	for _, opt := range opts {
		opt(cfg)
	}
	s := &Scheduler[K]{r: cfg.router}
	if s.r == nil {
		// workers is always positive here
		s.r, _ = router.NewDetached(cfg.workers)
		s.owned = true
	}
	return s
}

// Do schedules fn to run for the given key.
// It blocks until fn finishes and returns its error.
// All fn calls for the same key are executed sequentially.
func (s *Scheduler[K]) Do(key K, fn func() error) error {
	return s.DoContext(context.Background(), key, fn)
}

// DoContext is like Do but respects context cancellation.
// If the context is cancelled while waiting for completion, it returns the
// context error. The task is already queued and will still execute.
// A panic in fn is returned as an error wrapping ErrTaskPanicked; it does not
// take down the worker serving the key.
func (s *Scheduler[K]) DoContext(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	via := router.Submit(s.r, key, func(context.Context) (struct{}, error) {
		return struct{}{}, call(fn)
	})
	_, err := via.Await(ctx)
	return err
}

// Close stops accepting new tasks and waits for in-flight Do operations to
// return. A router created by New is closed afterwards.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()

	if s.owned {
		s.r.Close()
	}
}

// call runs fn, turning a panic into an error so every submitted task
// resolves and Close never waits on a dead worker.
func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return fn()
}

// ----- Errors -----

// ErrSchedulerClosed is returned when Do is called on a closed scheduler.
var ErrSchedulerClosed = &SchedulerError{"scheduler is closed"}

// ErrTaskPanicked is wrapped by the error Do returns when fn panicked.
var ErrTaskPanicked = &SchedulerError{"task panicked"}

// SchedulerError is a simple error implementation.
type SchedulerError struct {
	msg string
}

func (e *SchedulerError) Error() string { return e.msg }
