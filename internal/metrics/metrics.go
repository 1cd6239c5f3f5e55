// Package metrics exposes the Prometheus collectors for the optimizer API.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Runs counts optimization runs by kind and outcome phase.
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimization runs by kind and phase."},
		[]string{"kind", "phase"},
	)
	// RunDuration tracks run wall-clock time in seconds by kind.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimizer_run_duration_seconds", Help: "Run wall-clock duration.", Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}},
		[]string{"kind"},
	)
	// Iterations counts local-search move evaluations.
	Iterations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_iterations_total", Help: "Neighborhood move evaluations."},
	)
	// UnassignedStops counts stops left unassigned, by reason.
	UnassignedStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_unassigned_stops_total", Help: "Stops left unassigned by reason."},
		[]string{"reason"},
	)
	// QueueWaits counts adaptation lock waits by outcome.
	QueueWaits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_adaptation_queue_total", Help: "Adaptation lock queue outcomes."},
		[]string{"outcome"},
	)

	// Deliveries counts notification delivery outcomes by event type and status.
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notify_deliveries_total", Help: "Notification deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Runs)
		Registry.MustRegister(RunDuration)
		Registry.MustRegister(Iterations)
		Registry.MustRegister(UnassignedStops)
		Registry.MustRegister(QueueWaits)
		Registry.MustRegister(Deliveries)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
