package router

import (
	"context"
	"log/slog"
	"sync"
)

var global struct {
	mu sync.RWMutex
	r  *Router
}

// SetGlobal installs r as the global router, replacing any previous one.
// The previous router keeps running.
func SetGlobal(r *Router) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.r = r
}

// WithGlobal calls fn with the installed global router, or nil if none has
// been installed yet. fn runs under a read lock and must not call SetGlobal
// or Global.
func WithGlobal(fn func(r *Router)) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	fn(global.r)
}

// Global returns the global router, creating and installing a detached one
// on first use. Concurrent first callers share one router.
func Global() *Router {
	global.mu.RLock()
	r := global.r
	global.mu.RUnlock()
	if r != nil {
		return r
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if global.r == nil {
		global.r = newGlobal()
	}
	return global.r
}

func newGlobal() *Router {
	cfg, err := LoadConfig(context.Background())
	if err != nil {
		slog.Warn("invalid global router config, using defaults", slog.Any("err", err))
		cfg = Config{Workers: DefaultWorkers}
	}
	r, err := NewDetached(cfg.Workers, cfg.Options()...)
	if err != nil {
		// unreachable: LoadConfig rejects non-positive worker counts
		panic(err)
	}
	r.log.Info("global router created", slog.Int("workers", r.Len()))
	return r
}

// SubmitGlobal is Submit on the global router.
func SubmitGlobal[K comparable, T any](key K, fn func(ctx context.Context) (T, error)) *Via[T] {
	return Submit(Global(), key, fn)
}
