package router

import "github.com/codewandler/ert-go/core/metrics"

// RouterMetrics defines the instrumentation hooks of a Router.
// All methods are thread-safe.
type RouterMetrics interface {
	// Submission
	TaskSubmitted(routerID string, worker int)
	DeliveryFailed(routerID string)

	// Execution
	TaskDuration(routerID string) metrics.Timer
	TaskCompleted(routerID string, success bool)
	QueueDepth(routerID string, worker int, depth int)

	// Worker lifecycle
	WorkersRunning(routerID string, count int)
	WorkerPanicked(routerID string, worker int)
}

type nopRouterMetrics struct{}

func (nopRouterMetrics) TaskSubmitted(string, int) {}
func (nopRouterMetrics) DeliveryFailed(string)     {}

func (nopRouterMetrics) TaskDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopRouterMetrics) TaskCompleted(string, bool)        {}
func (nopRouterMetrics) QueueDepth(string, int, int)       {}

func (nopRouterMetrics) WorkersRunning(string, int) {}
func (nopRouterMetrics) WorkerPanicked(string, int) {}

// NopRouterMetrics returns a RouterMetrics that records nothing.
func NopRouterMetrics() RouterMetrics { return nopRouterMetrics{} }
