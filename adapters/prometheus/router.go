package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/ert-go/core/metrics"
	"github.com/codewandler/ert-go/core/router"
)

// routerMetrics implements router.RouterMetrics using Prometheus.
type routerMetrics struct {
	tasksSubmitted   *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	tasksTotal       *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	workersRunning   *prometheus.GaugeVec
	workerPanics     *prometheus.CounterVec
}

// NewRouterMetrics creates a new Prometheus implementation of RouterMetrics.
func NewRouterMetrics(reg prometheus.Registerer) router.RouterMetrics {
	m := &routerMetrics{
		tasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ert_router_tasks_submitted_total",
			Help: "Total number of units of work enqueued on a worker",
		}, []string{"router", "worker"}),

		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ert_router_delivery_failures_total",
			Help: "Total number of submissions to a stopped worker",
		}, []string{"router"}),

		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ert_router_task_duration_seconds",
			Help:    "Unit of work execution time in seconds",
			Buckets: defaultBuckets,
		}, []string{"router"}),

		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ert_router_tasks_total",
			Help: "Total number of units of work completed",
		}, []string{"router", "success"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ert_router_queue_depth",
			Help: "Units of work waiting in a worker queue",
		}, []string{"router", "worker"}),

		workersRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ert_router_workers_running",
			Help: "Number of workers still running",
		}, []string{"router"}),

		workerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ert_router_worker_panics_total",
			Help: "Total number of workers terminated by a panicking unit of work",
		}, []string{"router", "worker"}),
	}

	reg.MustRegister(
		m.tasksSubmitted,
		m.deliveryFailures,
		m.taskDuration,
		m.tasksTotal,
		m.queueDepth,
		m.workersRunning,
		m.workerPanics,
	)

	return m
}

func (m *routerMetrics) TaskSubmitted(routerID string, worker int) {
	m.tasksSubmitted.WithLabelValues(routerID, strconv.Itoa(worker)).Inc()
}

func (m *routerMetrics) DeliveryFailed(routerID string) {
	m.deliveryFailures.WithLabelValues(routerID).Inc()
}

func (m *routerMetrics) TaskDuration(routerID string) metrics.Timer {
	return newTimer(m.taskDuration.WithLabelValues(routerID))
}

func (m *routerMetrics) TaskCompleted(routerID string, success bool) {
	m.tasksTotal.WithLabelValues(routerID, boolToStr(success)).Inc()
}

func (m *routerMetrics) QueueDepth(routerID string, worker int, depth int) {
	m.queueDepth.WithLabelValues(routerID, strconv.Itoa(worker)).Set(float64(depth))
}

func (m *routerMetrics) WorkersRunning(routerID string, count int) {
	m.workersRunning.WithLabelValues(routerID).Set(float64(count))
}

func (m *routerMetrics) WorkerPanicked(routerID string, worker int) {
	m.workerPanics.WithLabelValues(routerID, strconv.Itoa(worker)).Inc()
}

var _ router.RouterMetrics = (*routerMetrics)(nil)
