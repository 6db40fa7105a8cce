// Package telemetry exports pipeline-stage durations and counts as
// Prometheus metrics, grounded on the corpus's production metrics package
// (internal/metrics in the USPS routing service). This is a debug scrape
// side-channel, not a control surface, so it does not conflict with the
// "no user-visible APIs" non-goal.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/histogram the epoch driver records into.
// Each instance owns a private registry rather than binding to
// prometheus's global DefaultRegisterer, so a process (or a test binary)
// can safely build more than one Metrics without a duplicate-collector
// panic.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	EpochRequests prometheus.Gauge
	EpochVehicles prometheus.Gauge
	MissedTotal   prometheus.Counter
	AssignedTotal prometheus.Counter
}

// New registers all metrics against a fresh, private Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kabina",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each epoch pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		EpochRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kabina", Subsystem: "pipeline", Name: "active_requests",
			Help: "Number of active requests at the start of the current epoch.",
		}),
		EpochVehicles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kabina", Subsystem: "pipeline", Name: "active_vehicles",
			Help: "Number of active vehicles at the start of the current epoch.",
		}),
		MissedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kabina", Subsystem: "pipeline", Name: "missed_requests_total",
			Help: "Cumulative count of requests missed by the assignment solver.",
		}),
		AssignedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kabina", Subsystem: "pipeline", Name: "assigned_requests_total",
			Help: "Cumulative count of requests assigned by the assignment solver.",
		}),
	}
}

// Handler returns the Prometheus scrape handler bound to this Metrics'
// own registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
