package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application.
type Metrics struct {
	// Exchange metrics
	ExchangeRequests prometheus.Counter
	ExchangeLatency  prometheus.Histogram
	ExchangeErrors   *prometheus.CounterVec

	// Lifecycle metrics
	ChatsCreated prometheus.Counter
	ChatsDeleted prometheus.Counter
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// InitMetrics initializes the Prometheus metrics. Safe to call more than
// once; metrics register on the default registry exactly once.
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ExchangeRequests: promauto.NewCounter(prometheus.CounterOpts{
				Name: "neurochat_exchanges_total",
				Help: "Total number of message exchanges processed",
			}),

			ExchangeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "neurochat_exchange_duration_seconds",
				Help:    "Exchange latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for LLM responses
			}),

			ExchangeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "neurochat_exchange_errors_total",
				Help: "Total number of exchange errors by type",
			}, []string{"error_type"}),

			ChatsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "neurochat_chats_created_total",
				Help: "Total number of chats created",
			}),

			ChatsDeleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "neurochat_chats_deleted_total",
				Help: "Total number of chats deleted",
			}),
		}
	})
	return globalMetrics
}

// GetMetrics returns the global metrics instance, or nil when metrics were
// never initialized (tests). All call sites tolerate nil.
func GetMetrics() *Metrics {
	return globalMetrics
}
