package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RunRecorded("tail")
	m.RunRecorded("tail")
	m.Correction("damage_clamped")
	m.QueueTransition("locked")
	m.StorageFailure("list runs")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("tail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.corrections.WithLabelValues("damage_clamped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("locked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storage.WithLabelValues("list runs")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunRecorded("normal")
		m.Correction("x")
		m.QueueTransition("cancel")
		m.StorageFailure("x")
	})
}
