package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the Kafka event sink.
type Metrics struct {
	Produced     prometheus.Counter
	Failures     prometheus.Counter
	Dropped      prometheus.Counter
	BreakerState prometheus.Gauge
}

// NewMetrics creates and registers the sink metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Produced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_events_produced_total",
			Help: "Total number of composition events written to Kafka",
		}),
		Failures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_events_produce_failures_total",
			Help: "Total number of failed Kafka produce attempts",
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_events_dropped_total",
			Help: "Total number of events dropped while the circuit breaker was open",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ezweb_events_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open)",
		}),
	}
}
