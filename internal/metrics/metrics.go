// Package metrics exposes ingestion counters and latencies to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for record ingestion.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Import record verdicts by state
	RecordOutcome *prometheus.CounterVec

	// Item verdicts by state and error code ("" when synchronized)
	ItemOutcome *prometheus.CounterVec

	// Outcome reports applied to the outbound queue, by normalized state
	OutcomeReports *prometheus.CounterVec

	// Entity writes committed by the item pipeline, by op ("create", "update")
	EntityWrites *prometheus.CounterVec

	// Records rejected or failed before any item was applied, by reason
	RecordFaults *prometheus.CounterVec

	// Duration of ProcessRecord, including the idempotency check
	IngestLatency prometheus.Histogram
}

// New registers every ingestion metric on reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry, or a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medsync_ingest_records_total",
			Help: "Total import records produced, by state",
		}, []string{"state"}),

		ItemOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medsync_ingest_items_total",
			Help: "Total import items produced, by state and error code",
		}, []string{"state", "code"}),

		OutcomeReports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medsync_outcome_reports_total",
			Help: "Total outcome reports applied to outbound records, by state",
		}, []string{"state"}),

		EntityWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medsync_ingest_writes_total",
			Help: "Total entities written by ingestion, by operation",
		}, []string{"op"}),

		RecordFaults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medsync_ingest_faults_total",
			Help: "Total records that could not be processed, by reason",
		}, []string{"reason"}), // reason: "not_accepted", "store", "panic"

		IngestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medsync_ingest_duration_seconds",
			Help:    "Duration of processing one sync record",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementRecord records an import record verdict.
func (m *Metrics) IncrementRecord(state string) {
	if m != nil {
		m.RecordOutcome.WithLabelValues(state).Inc()
	}
}

// IncrementItem records an import item verdict.
func (m *Metrics) IncrementItem(state, code string) {
	if m != nil {
		m.ItemOutcome.WithLabelValues(state, code).Inc()
	}
}

// IncrementOutcomeReport records an outcome report applied to the queue.
func (m *Metrics) IncrementOutcomeReport(state string) {
	if m != nil {
		m.OutcomeReports.WithLabelValues(state).Inc()
	}
}

// IncrementWrite records one committed entity write.
func (m *Metrics) IncrementWrite(op string) {
	if m != nil {
		m.EntityWrites.WithLabelValues(op).Inc()
	}
}

// IncrementFault records a record-level fault.
func (m *Metrics) IncrementFault(reason string) {
	if m != nil {
		m.RecordFaults.WithLabelValues(reason).Inc()
	}
}

// ObserveIngestLatency records the duration of one ProcessRecord call.
func (m *Metrics) ObserveIngestLatency(d time.Duration) {
	if m != nil {
		m.IngestLatency.Observe(d.Seconds())
	}
}
