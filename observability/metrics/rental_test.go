package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRentalMetricsRecordsOutcomes(t *testing.T) {
	m := Rental()
	require.Same(t, m, Rental())

	applied := counterValue(t, m.operations.WithLabelValues("rental_borrow", "success"))
	rejected := counterValue(t, m.failures.WithLabelValues("rental_borrow", "already_rented"))

	m.ObserveApplied("rental_borrow", time.Millisecond)
	m.ObserveRejected("rental_borrow", "already_rented", time.Millisecond)
	m.ObserveRejected("", "", time.Millisecond)

	require.Equal(t, applied+1, counterValue(t, m.operations.WithLabelValues("rental_borrow", "success")))
	require.Equal(t, rejected+1, counterValue(t, m.failures.WithLabelValues("rental_borrow", "already_rented")))
	require.GreaterOrEqual(t, counterValue(t, m.failures.WithLabelValues("unknown", "unknown")), 1.0)
}

func TestRentalMetricsHeightAndSweep(t *testing.T) {
	m := Rental()
	before := counterValue(t, m.swept)
	m.AddSwept(40)
	m.AddSwept(0)
	m.AddSwept(-3)
	require.Equal(t, before+40, counterValue(t, m.swept))

	m.SetHeight(7)
	var g dto.Metric
	require.NoError(t, m.height.Write(&g))
	require.Equal(t, 7.0, g.GetGauge().GetValue())

	var nilMetrics *RentalMetrics
	nilMetrics.ObserveApplied("x", time.Second)
	nilMetrics.SetHeight(1)
}
