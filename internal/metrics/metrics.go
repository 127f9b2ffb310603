package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcome labels beyond stage.Result values.
const (
	OutcomeDeadLetter = "dead_letter"
	OutcomePanic      = "panic"
)

var (
	// JobsTotal counts settled deliveries per queue and outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediapipe_jobs_total",
			Help: "Deliveries handled per queue and outcome.",
		},
		[]string{"queue", "outcome"},
	)

	// JobDuration observes handler latency per queue.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediapipe_job_duration_seconds",
			Help:    "Stage handler duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	// JobErrorsTotal counts handler errors per queue and error marker.
	JobErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediapipe_job_errors_total",
			Help: "Stage handler errors per queue and error kind.",
		},
		[]string{"queue", "kind"},
	)

	// InFlight tracks deliveries currently being handled.
	InFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediapipe_jobs_in_flight",
			Help: "Deliveries currently being handled per queue.",
		},
		[]string{"queue"},
	)

	// ReclaimedTotal counts creation jobs republished by the reclaimer.
	ReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediapipe_reclaimed_jobs_total",
		Help: "File-creation jobs republished for stale ingestions.",
	})

	// IngestedTotal counts accepted uploads per kind.
	IngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediapipe_ingested_files_total",
			Help: "Uploads accepted by the ingestion gateway per kind.",
		},
		[]string{"kind"},
	)

	// RealtimeClients tracks connected websocket clients.
	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediapipe_realtime_clients",
		Help: "Connected realtime clients.",
	})

	// RealtimeDroppedTotal counts clients disconnected for a full send buffer.
	RealtimeDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediapipe_realtime_dropped_clients_total",
		Help: "Realtime clients disconnected because their send buffer was full.",
	})

	// PushTotal counts push messages per outcome.
	PushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediapipe_push_messages_total",
			Help: "Push messages per outcome (success, failure, pruned).",
		},
		[]string{"outcome"},
	)

	// TokenCacheHitsTotal counts device-token cache hits.
	TokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediapipe_token_cache_hits_total",
		Help: "Device-token cache hits.",
	})

	// TokenCacheMissesTotal counts device-token cache misses.
	TokenCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediapipe_token_cache_misses_total",
		Help: "Device-token cache misses.",
	})
)
