package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the ledger engine's operational counters on a private
// registry.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	entriesPosted    prometheus.Counter
	balanceConflicts prometheus.Counter
	integrityTrips   *prometheus.CounterVec
}

// NewMetrics initialises the registry and base counters.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	posted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harbor_journal_entries_posted_total",
		Help: "Journal entries committed to the ledger.",
	})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harbor_balance_version_conflicts_total",
		Help: "Balance updates retried after a version conflict.",
	})
	trips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harbor_integrity_trips_total",
		Help: "Integrity violations detected, by source.",
	}, []string{"source"})
	registry.MustRegister(posted, conflicts, trips)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		entriesPosted:    posted,
		balanceConflicts: conflicts,
		integrityTrips:   trips,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveEntryPosted increments the posted-entries counter.
func (m *Metrics) ObserveEntryPosted() {
	if m != nil {
		m.entriesPosted.Inc()
	}
}

// ObserveBalanceConflict increments the retried-conflicts counter.
func (m *Metrics) ObserveBalanceConflict() {
	if m != nil {
		m.balanceConflicts.Inc()
	}
}

// ObserveIntegrityTrip increments the integrity counter for a source.
func (m *Metrics) ObserveIntegrityTrip(source string) {
	if m != nil {
		m.integrityTrips.WithLabelValues(source).Inc()
	}
}
