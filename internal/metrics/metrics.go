package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters. All increment methods are nil-safe so
// callers can skip wiring metrics entirely.
type Metrics struct {
	eventsProcessed prometheus.Counter
	eventsSkipped   prometheus.Counter
	claimsUpdated   prometheus.Counter
	pollErrors      prometheus.Counter
	eventErrors     prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "claim_sync_events_processed_total",
				Help: "Total number of contract events ingested",
			}),
			eventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "claim_sync_events_skipped_total",
				Help: "Total number of events skipped as already processed",
			}),
			claimsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "claim_sync_claims_updated_total",
				Help: "Total number of claim status updates applied",
			}),
			pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "claim_sync_poll_errors_total",
				Help: "Total number of failed poll cycles",
			}),
			eventErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "claim_sync_event_errors_total",
				Help: "Total number of events that failed processing",
			}),
		}
		prometheus.MustRegister(
			metrics.eventsProcessed,
			metrics.eventsSkipped,
			metrics.claimsUpdated,
			metrics.pollErrors,
			metrics.eventErrors,
		)
	})
	return metrics
}

// EventsProcessed increments the processed events counter.
func (m *Metrics) EventsProcessed() {
	if m != nil {
		m.eventsProcessed.Inc()
	}
}

// EventsSkipped increments the skipped (duplicate) events counter.
func (m *Metrics) EventsSkipped() {
	if m != nil {
		m.eventsSkipped.Inc()
	}
}

// ClaimsUpdated increments the applied claim updates counter.
func (m *Metrics) ClaimsUpdated() {
	if m != nil {
		m.claimsUpdated.Inc()
	}
}

// PollErrors increments the failed poll cycles counter.
func (m *Metrics) PollErrors() {
	if m != nil {
		m.pollErrors.Inc()
	}
}

// EventErrors increments the per-event failure counter.
func (m *Metrics) EventErrors() {
	if m != nil {
		m.eventErrors.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
