package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votegate",
		Name:      "attempt_outcomes_total",
		Help:      "Verified vote attempts by terminal outcome",
	}, []string{"outcome"})

	AttemptsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "votegate",
		Name:      "attempts_abandoned_total",
		Help:      "Attempts cancelled or timed out before a decision",
	})

	VotesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "votegate",
		Name:      "votes_committed_total",
		Help:      "Total number of votes written to the ledger",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "votegate",
		Name:      "stage_duration_seconds",
		Help:      "Duration of verification stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	LivenessScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "votegate",
		Name:      "liveness_score",
		Help:      "Laplacian variance of submitted captures",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	MatchDistances = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "votegate",
		Name:      "match_distance",
		Help:      "Euclidean distance between enrolled and live templates",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 15),
	})

	ClassifierUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "votegate",
		Name:      "spoof_classifier_unavailable_total",
		Help:      "Spoof checks skipped because the classifier could not answer",
	})

	ExtractQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate",
		Name:      "extract_queue_depth",
		Help:      "Attempts waiting for a template extraction slot",
	})

	EventsPublishFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "votegate",
		Name:      "events_publish_failed_total",
		Help:      "Attempt events that could not be published",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "votegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
