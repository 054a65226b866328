package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	MessagesStored     *prometheus.CounterVec
	DuplicatesSkipped  prometheus.Counter
	TokenizeQueueDepth prometheus.Gauge
	TokenizeFallbacks  prometheus.Counter
	CleanupRuns        prometheus.Counter
	CleanupDeleted     prometheus.Counter
	ContextTokens      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MessagesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages persisted, by role.",
		}, []string{"role"}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_messages_skipped_total",
			Help:      "Writes skipped because the idempotency key was already stored.",
		}),
		TokenizeQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tokenize_queue_depth",
			Help:      "Messages waiting for precise tokenization.",
		}),
		TokenizeFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokenize_fallbacks_total",
			Help:      "Tokenizer failures served by the character estimator.",
		}),
		CleanupRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Excess-cleanup passes that deleted at least one message.",
		}),
		CleanupDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_messages_total",
			Help:      "Messages evicted by excess cleanup.",
		}),
		ContextTokens: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_window_tokens",
			Help:      "Token mass of assembled context windows.",
			Buckets:   []float64{100, 500, 1000, 2000, 4000, 8000, 16000, 32000, 64000},
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
