package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementRecord("COMMITTED")
	m.IncrementRecord("COMMITTED")
	m.IncrementRecord("FAILED")
	m.IncrementItem("CONFLICT", "UNKNOWN_TYPE")
	m.IncrementOutcomeReport("REJECTED")
	m.IncrementFault("store")
	m.IncrementWrite("create")
	m.IncrementWrite("update")
	m.IncrementWrite("update")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordOutcome.WithLabelValues("COMMITTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordOutcome.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemOutcome.WithLabelValues("CONFLICT", "UNKNOWN_TYPE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomeReports.WithLabelValues("REJECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordFaults.WithLabelValues("store")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntityWrites.WithLabelValues("create")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntityWrites.WithLabelValues("update")))
}

func TestMetrics_Latency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveIngestLatency(20 * time.Millisecond)
	m.ObserveIngestLatency(40 * time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "medsync_ingest_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncrementRecord("COMMITTED")
		m.IncrementItem("SYNCHRONIZED", "")
		m.IncrementOutcomeReport("COMMITTED")
		m.IncrementFault("panic")
		m.IncrementWrite("create")
		m.ObserveIngestLatency(time.Second)
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
