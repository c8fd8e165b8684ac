package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_published_total",
		Help: "The total number of events published to the bus",
	}, []string{"routing_key"})
	PublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_publish_errors_total",
		Help: "The total number of failed publish attempts",
	}, []string{"routing_key"})
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_consumed_total",
		Help: "The total number of events acknowledged after a successful handler run",
	}, []string{"routing_key"})
	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_handler_failures_total",
		Help: "The total number of handler runs that left the message for redelivery",
	}, []string{"routing_key"})
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_rejected_total",
		Help: "The total number of malformed events dropped without redelivery",
	}, []string{"routing_key"})
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bus_handler_duration_seconds",
		Help:    "Time taken by event handlers",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"routing_key"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "The total number of read-through cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "The total number of read-through cache misses",
	})
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_errors_total",
		Help: "The total number of cache backend failures that were bypassed",
	}, []string{"op"})

	OutboxJournaled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_journaled_total",
		Help: "The total number of failed publishes recorded for republish",
	})
	OutboxRepublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_events_published_total",
		Help: "The total number of journaled events republished to the bus",
	})
	OutboxRepublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_publish_errors_total",
		Help: "The total number of failed republish attempts",
	})
)

// Serve exposes /metrics on addr in the background.
func Serve(addr string, logger *slog.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}
