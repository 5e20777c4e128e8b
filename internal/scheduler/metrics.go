package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmserve",
			Subsystem: "scheduler",
			Name:      "requests_total",
			Help:      "Requests executed by the scheduler, by outcome",
		},
		[]string{"outcome"},
	)

	tokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llmserve",
			Subsystem: "scheduler",
			Name:      "tokens_total",
			Help:      "Tokens delivered to output sinks",
		},
	)

	droppedTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llmserve",
			Subsystem: "scheduler",
			Name:      "dropped_tokens_total",
			Help:      "Tokens generated after the receiver went away",
		},
	)

	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "llmserve",
			Subsystem: "scheduler",
			Name:      "queue_length",
			Help:      "Requests waiting for the scheduler",
		},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llmserve",
			Subsystem: "scheduler",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one request's generation",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
	outcomeClosed = "closed"
)

func init() {
	prometheus.MustRegister(requestsTotal, tokensTotal, droppedTokensTotal, queueLength, generationDuration)
}
