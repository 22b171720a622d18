package router

import (
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Executor is the substrate the worker loops run on. Go must start fn
// concurrently and must not wait for it to return.
type Executor interface {
	Go(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Go(fn func()) { f(fn) }

var goroutines = ExecutorFunc(func(fn func()) { go fn() })

// OnPanic is called after a unit of work panicked and its worker stopped.
type OnPanic func(worker int, recovered any, stack []byte)

// Option configures a Router.
type Option func(*config)

type config struct {
	id      string
	log     *slog.Logger
	exec    Executor
	metrics RouterMetrics
	seed    string
	onPanic OnPanic
}

// WithID names the router in logs and metrics (default: router-<nanoid>).
func WithID(id string) Option {
	return func(c *config) {
		if id != "" {
			c.id = id
		}
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithExecutor runs the worker loops on e instead of plain goroutines.
// It is ignored by NewDetached, which always owns its substrate.
func WithExecutor(e Executor) Option {
	return func(c *config) {
		if e != nil {
			c.exec = e
		}
	}
}

// WithMetrics sets the metrics sink (default: no-op).
func WithMetrics(m RouterMetrics) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSeed personalises key hashing. Routers sharing a seed map string and
// integer keys onto the same worker indexes, even across processes.
func WithSeed(seed string) Option {
	return func(c *config) { c.seed = seed }
}

// WithOnPanic registers a callback for worker-killing panics.
func WithOnPanic(fn OnPanic) Option {
	return func(c *config) { c.onPanic = fn }
}

func newConfig(opts []Option) *config {
	cfg := &config{
		log:     slog.Default(),
		exec:    goroutines,
		metrics: NopRouterMetrics(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.id == "" {
		cfg.id = fmt.Sprintf("router-%s", gonanoid.Must(6))
	}
	return cfg
}
