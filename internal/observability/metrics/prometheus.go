// Package metrics provides Prometheus metrics for the renewal engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	CyclesCreated          prometheus.Counter
	CyclesSkippedDuplicate prometheus.Counter
	CyclesCancelled        prometheus.Counter
	OccurrencesGenerated   prometheus.Counter
	OccurrenceTransitions  *prometheus.CounterVec
	NotificationsEnqueued  prometheus.Counter
	NotificationsPublished prometheus.Counter
	ImportRowsProcessed    *prometheus.CounterVec
	RequestDuration        prometheus.Histogram
	OutboxPending          prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		CyclesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_cycles_created_total",
			Help: "Total prescription cycles created",
		}),
		CyclesSkippedDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_cycles_skipped_duplicate_total",
			Help: "Cycle creations rejected by the duplicate guard",
		}),
		CyclesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_cycles_cancelled_total",
			Help: "Cycles cancelled, including bulk cancellations",
		}),
		OccurrencesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_occurrences_generated_total",
			Help: "Renewal occurrences generated across all cycles",
		}),
		OccurrenceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renewal_occurrence_transitions_total",
			Help: "Occurrence status transitions",
		}, []string{"to"}),
		NotificationsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_notifications_enqueued_total",
			Help: "Notification requests written to the outbox",
		}),
		NotificationsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renewal_notifications_published_total",
			Help: "Notification requests published to the bus",
		}),
		ImportRowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_import_rows_total",
			Help: "Calendar import rows by outcome",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "renewal_request_duration_seconds",
			Help:    "API request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_outbox_pending_entries",
			Help: "Pending notification outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.CyclesCreated,
		m.CyclesSkippedDuplicate,
		m.CyclesCancelled,
		m.OccurrencesGenerated,
		m.OccurrenceTransitions,
		m.NotificationsEnqueued,
		m.NotificationsPublished,
		m.ImportRowsProcessed,
		m.RequestDuration,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
