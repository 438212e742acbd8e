// Package metrics exposes the engine's Prometheus instrumentation. All
// collectors register once, so tests can import the package repeatedly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	reservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tempusfugit",
			Name:      "reservations_created_total",
			Help:      "Reservations created, by initial status.",
		},
		[]string{"status"},
	)

	reservationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tempusfugit",
			Name:      "reservations_rejected_total",
			Help:      "Reservation requests rejected, by error kind.",
		},
		[]string{"kind"},
	)

	reservationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tempusfugit",
			Name:      "reservation_transitions_total",
			Help:      "Lifecycle transitions applied to reservations.",
		},
		[]string{"transition"},
	)

	sheetCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tempusfugit",
			Name:      "sheet_cache_requests_total",
			Help:      "Day sheet cache lookups, by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tempusfugit",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tempusfugit",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register installs every collector into the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			reservationsCreated,
			reservationsRejected,
			reservationTransitions,
			sheetCacheHits,
			httpRequests,
			httpDuration,
		)
	})
}

func IncReservationCreated(status string) {
	reservationsCreated.WithLabelValues(status).Inc()
}

func IncReservationRejected(kind string) {
	reservationsRejected.WithLabelValues(kind).Inc()
}

func IncReservationTransition(transition string) {
	reservationTransitions.WithLabelValues(transition).Inc()
}

func IncSheetCache(result string) {
	sheetCacheHits.WithLabelValues(result).Inc()
}

func ObserveHTTPRequest(route, code string, seconds float64) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}
