// README: Prometheus collectors for the order engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TransitionsApplied  *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	OrdersCreated       prometheus.Counter
	FeeTotal            prometheus.Histogram
	MatchCandidates     prometheus.Histogram
	AssignConflicts     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nasta_order_transitions_applied_total",
			Help: "Order status transitions applied, by target status and actor role.",
		}, []string{"to", "role"}),
		TransitionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nasta_order_transitions_rejected_total",
			Help: "Order status transitions rejected, by reason.",
		}, []string{"reason"}),
		OrdersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "nasta_orders_created_total",
			Help: "Orders successfully created.",
		}),
		FeeTotal: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nasta_order_fee_total",
			Help:    "Computed delivery fee totals.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		MatchCandidates: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nasta_match_candidates",
			Help:    "Candidate drivers returned per matching search.",
			Buckets: prometheus.LinearBuckets(0, 2, 11),
		}),
		AssignConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "nasta_driver_assign_conflicts_total",
			Help: "Driver assignments lost to a concurrent acquire.",
		}),
	}
}

// Applied is nil-safe so services can run without metrics in tests.
func (m *Metrics) Applied(to, role string) {
	if m == nil {
		return
	}
	m.TransitionsApplied.WithLabelValues(to, role).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.TransitionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Created(feeTotal float64) {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
	m.FeeTotal.Observe(feeTotal)
}

func (m *Metrics) Candidates(n int) {
	if m == nil {
		return
	}
	m.MatchCandidates.Observe(float64(n))
}

func (m *Metrics) AssignConflict() {
	if m == nil {
		return
	}
	m.AssignConflicts.Inc()
}
