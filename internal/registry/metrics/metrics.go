package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the definition registry.
type Metrics struct {
	DefinitionsCreated prometheus.Counter
	DefinitionsDeleted prometheus.Counter
	DeletesBlocked     prometheus.Counter
	LifecycleChanges   *prometheus.CounterVec
	ListDuration       prometheus.Histogram
}

// New creates a new Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		DefinitionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_definitions_created_total",
			Help: "Total number of component definitions created",
		}),
		DefinitionsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_definitions_deleted_total",
			Help: "Total number of component definitions hard-deleted",
		}),
		DeletesBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_definitions_delete_blocked_total",
			Help: "Deletes refused because bindings still reference the definition",
		}),
		LifecycleChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ezweb_definitions_lifecycle_changes_total",
			Help: "Definition activation state changes by transition",
		}, []string{"transition"}),
		ListDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ezweb_definitions_list_duration_seconds",
			Help:    "Duration of public registry listings",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.DefinitionsCreated.Inc()
}

func (m *Metrics) IncrementDeleted() {
	m.DefinitionsDeleted.Inc()
}

func (m *Metrics) IncrementDeleteBlocked() {
	m.DeletesBlocked.Inc()
}

func (m *Metrics) IncrementTransition(transition string) {
	m.LifecycleChanges.WithLabelValues(transition).Inc()
}

// ObserveList records the duration of a listing. Call with time.Now() at
// the start of the operation.
func (m *Metrics) ObserveList(start time.Time) {
	m.ListDuration.Observe(time.Since(start).Seconds())
}
