package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for site composition.
type Metrics struct {
	BindingsAdded     prometheus.Counter
	BindingsDeleted   prometheus.Counter
	BindingsMoved     prometheus.Counter
	Reorders          prometheus.Counter
	ReordersRejected  prometheus.Counter
	InactiveRejected  prometheus.Counter
	OperationDuration *prometheus.HistogramVec
	SiteSize          prometheus.Histogram
}

// New creates a new Metrics instance with all composition metrics registered.
func New() *Metrics {
	return &Metrics{
		BindingsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_bindings_added_total",
			Help: "Total number of component bindings added to sites",
		}),
		BindingsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_bindings_deleted_total",
			Help: "Total number of component bindings removed from sites",
		}),
		BindingsMoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_bindings_moved_total",
			Help: "Binding updates that changed the binding's position",
		}),
		Reorders: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_site_reorders_total",
			Help: "Total number of committed site reorders",
		}),
		ReordersRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_site_reorders_rejected_total",
			Help: "Reorders refused because the input was not a permutation of the site's bindings",
		}),
		InactiveRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ezweb_bindings_inactive_definition_rejected_total",
			Help: "Bind attempts refused because the definition is inactive",
		}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ezweb_composition_operation_duration_seconds",
			Help:    "Duration of composition operations by operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		SiteSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ezweb_site_bindings_count",
			Help:    "Number of bindings on a site after a mutation",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
	}
}

func (m *Metrics) IncrementAdded() {
	m.BindingsAdded.Inc()
}

func (m *Metrics) IncrementDeleted() {
	m.BindingsDeleted.Inc()
}

func (m *Metrics) IncrementMoved() {
	m.BindingsMoved.Inc()
}

func (m *Metrics) IncrementReorders() {
	m.Reorders.Inc()
}

func (m *Metrics) IncrementReorderRejected() {
	m.ReordersRejected.Inc()
}

func (m *Metrics) IncrementInactiveRejected() {
	m.InactiveRejected.Inc()
}

// ObserveOperation records an operation's duration. Call with time.Now() at
// the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveSiteSize(n int) {
	m.SiteSize.Observe(float64(n))
}
