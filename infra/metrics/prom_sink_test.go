package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evcharge/core/model"
)

func TestPromSinkRecordSession(t *testing.T) {
	s := NewPromSink(prometheus.NewRegistry())

	require.NoError(t, s.RecordSession(model.SessionRecord{CPID: "CP1", DriverID: "D1", EnergyKWh: 10, Amount: 4}))
	require.NoError(t, s.RecordSession(model.SessionRecord{CPID: "CP1", DriverID: "D2", EnergyKWh: 5, Amount: 2.5}))

	assert.InDelta(t, 2, testutil.ToFloat64(s.sessions.WithLabelValues("CP1")), 1e-9)
	assert.InDelta(t, 15, testutil.ToFloat64(s.energy.WithLabelValues("CP1")), 1e-9)
	assert.InDelta(t, 6.5, testutil.ToFloat64(s.amount.WithLabelValues("CP1")), 1e-9)
}

func TestPromSinkStateGaugeKeepsOneSeries(t *testing.T) {
	s := NewPromSink(prometheus.NewRegistry())

	require.NoError(t, s.RecordCPState("CP1", model.StateActivated))
	require.NoError(t, s.RecordCPState("CP1", model.StateSupplying))

	// The activated series must be gone, leaving one series for the point.
	assert.Equal(t, 1, testutil.CollectAndCount(s.cpState))
	assert.InDelta(t, 1, testutil.ToFloat64(s.cpState.WithLabelValues("CP1", string(model.StateSupplying))), 1e-9)
}
