package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReconMetrics reconciliation business metrics
type ReconMetrics struct {
	TransitionsTotal    *prometheus.CounterVec
	RejectionsTotal     *prometheus.CounterVec
	PaymentsTotal       *prometheus.CounterVec
	PaymentAmountTotal  *prometheus.CounterVec
	ExportDuration      *prometheus.HistogramVec
	EventPublishFailure *prometheus.CounterVec
}

// NewReconMetrics registers the metrics on reg; nil means the default registry.
func NewReconMetrics(reg prometheus.Registerer) *ReconMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &ReconMetrics{
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_status_transitions_total",
			Help: "Accepted status transitions",
		}, []string{"entity", "from", "to"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_rejections_total",
			Help: "Rejected operations by error kind",
		}, []string{"entity", "kind"}),
		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_settlement_payments_total",
			Help: "Settlement payment events by result",
		}, []string{"result"}),
		PaymentAmountTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_settlement_payment_amount_total",
			Help: "Amount applied to settlement batches",
		}, []string{"currency"}),
		ExportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recon_export_duration_seconds",
			Help:    "Duration of spreadsheet exports",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		EventPublishFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_event_publish_failures_total",
			Help: "Events that could not be delivered to a sink",
		}, []string{"sink"}),
	}
}
