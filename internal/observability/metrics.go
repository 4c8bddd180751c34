package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "station_matching"

var (
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_consumed_total", Help: "Inbound events consumed"}, []string{"stream"})
	EventsInvalid  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_invalid_total", Help: "Inbound events discarded as malformed"}, []string{"stream"})
	EventsFailed   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_failed_total", Help: "Inbound events left unacknowledged for redelivery"}, []string{"stream"})
	Reconnects     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "transport_reconnects_total", Help: "Consumer loop restarts"}, []string{"stream"})

	MatchesTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Total number of matches"})
	RidersMatched      = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "riders_matched_total", Help: "Riders boarded across all matches"})
	MatchLatency       = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Time spent handling a proximity event that produced a match"})
	RegistrarFallbacks = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "registrar_fallbacks_total", Help: "Matches that used a locally generated trip id"})
	NotifierFailures   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notifier_failures_total", Help: "Notifications that could not be delivered"})
	DuplicateEvents    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "duplicate_events_total", Help: "Redelivered proximity events skipped by the guard"})

	RidersWaiting  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "riders_waiting", Help: "Riders waiting across all stations"})
	DriversTracked = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_tracked", Help: "Drivers with tracked seat state"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
