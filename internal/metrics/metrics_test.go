package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *EngineMetrics
	assert.NotPanics(t, func() {
		m.RecordFill(1, 1, "purchase")
		m.RecordPayout(1, "slot_1", 850)
		m.RecordFreeze(1)
		m.RecordCycle(1)
		m.RecordUpgrade(2, "activated")
		m.ObserveCascade(3)
		m.RecordFailure("")
		m.RecordIntake("processed")
	})
}

func TestRecordPayout(t *testing.T) {
	m := NewUnregistered()
	m.RecordPayout(3, "slot_3", 3550)
	m.RecordPayout(3, "frozen_release", 3550)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.payouts.WithLabelValues("3", "slot_3")))
	assert.Equal(t, float64(7100), testutil.ToFloat64(m.payoutAmount.WithLabelValues("3")))
}

func TestRecordFailure_DefaultsReason(t *testing.T) {
	m := NewUnregistered()
	m.RecordFailure("  ")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("unspecified")))
}
