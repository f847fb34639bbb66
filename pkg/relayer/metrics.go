// Copyright 2025 Certen Protocol
//
// Relayer metrics, exposed over /metrics for operator dashboards.

package relayer

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	claimsSubmitted  prometheus.Counter
	claimsConfirmed  prometheus.Counter
	claimsFailed     prometheus.Counter
	claimsReconciled prometheus.Counter
	batchDuration    prometheus.Histogram
	pendingGauge     prometheus.Gauge
	computeCost      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		claimsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_claims_submitted_total",
			Help: "Claims optimistically marked submitted before broadcast.",
		}),
		claimsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_claims_confirmed_total",
			Help: "Claims that reached the confirmed terminal state.",
		}),
		claimsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_claims_failed_total",
			Help: "Claims marked failed after exhausting transaction-level retries or hitting a non-retryable submission error.",
		}),
		claimsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_claims_reconciled_total",
			Help: "Claims confirmed directly from ledger reconciliation without a new submission.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relayer_batch_duration_seconds",
			Help:    "Wall-clock time to process one batch, reconciliation through settlement.",
			Buckets: prometheus.DefBuckets,
		}),
		pendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relayer_pending_claims",
			Help: "Claims returned by the most recent next_pending call.",
		}),
		computeCost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_compute_cost_micro_lamports_total",
			Help: "Estimated compute cost (compute_unit_limit * compute_unit_price) spent across submitted batches.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.claimsSubmitted, m.claimsConfirmed, m.claimsFailed, m.claimsReconciled, m.batchDuration, m.pendingGauge, m.computeCost)
	}
	return m
}
