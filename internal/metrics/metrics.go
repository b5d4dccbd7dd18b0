// Package metrics holds the Prometheus collectors for the taste trainer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Trainer metrics
	SwipesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taste_swipes_total",
			Help: "Total number of applied swipes",
		},
		[]string{"action"},
	)

	UndoTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taste_undo_total",
			Help: "Total number of undone swipes",
		},
	)

	ResetTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taste_reset_total",
			Help: "Total number of full resets",
		},
	)

	DeckSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taste_deck_size",
			Help: "Current number of dishes in the deck",
		},
	)

	DeckRefills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taste_deck_refills_total",
			Help: "Deck refill attempts by outcome",
		},
		[]string{"outcome"}, // "filled", "empty", "error"
	)

	DeckRefillDishes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taste_deck_refill_dishes_total",
			Help: "Total number of dishes appended by refills",
		},
	)

	// Analysis metrics
	AnalysisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taste_analysis_requests_total",
			Help: "Analysis calls by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "stale"
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taste_analysis_duration_seconds",
			Help:    "Duration of analysis calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	AnalysisBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taste_analysis_breaker_state",
			Help: "Analysis circuit breaker state (1 for the current state)",
		},
		[]string{"state"},
	)

	// Persistence metrics
	SnapshotSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taste_snapshot_saves_total",
			Help: "Snapshot writes by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taste_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taste_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taste_sse_clients",
			Help: "Connected server-sent event clients",
		},
	)
)

var breakerStates = []string{"closed", "half-open", "open"}

// RecordRefill records the outcome of a deck refill.
func RecordRefill(added int, err error) {
	switch {
	case err != nil:
		DeckRefills.WithLabelValues("error").Inc()
	case added == 0:
		DeckRefills.WithLabelValues("empty").Inc()
	default:
		DeckRefills.WithLabelValues("filled").Inc()
		DeckRefillDishes.Add(float64(added))
	}
}

// RecordAnalysis records an analysis call.
func RecordAnalysis(duration time.Duration, outcome string) {
	AnalysisRequests.WithLabelValues(outcome).Inc()
	AnalysisDuration.Observe(duration.Seconds())
}

// RecordSave records a snapshot write.
func RecordSave(err error) {
	if err != nil {
		SnapshotSaves.WithLabelValues("failure").Inc()
		return
	}
	SnapshotSaves.WithLabelValues("success").Inc()
}

// SetBreakerState marks state as the current breaker state.
func SetBreakerState(state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		AnalysisBreakerState.WithLabelValues(s).Set(v)
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
