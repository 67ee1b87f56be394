package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type RentalMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	swept      prometheus.Counter
	height     prometheus.Gauge
}

var (
	rentalOnce     sync.Once
	rentalRegistry *RentalMetrics
)

func Rental() *RentalMetrics {
	rentalOnce.Do(func() {
		rentalRegistry = &RentalMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rental_operations_total",
				Help: "Count of applied transactions by type and outcome.",
			}, []string{"op", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rental_failures_total",
				Help: "Count of rejected transactions by type and failure kind.",
			}, []string{"op", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "rental_apply_duration_seconds",
				Help:    "Time spent applying and committing a transaction.",
				Buckets: prometheus.DefBuckets,
			}, []string{"op"}),
			swept: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rental_swept_units_total",
				Help: "Native units swept from record accounts back to owners.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rental_committed_height",
				Help: "Number of transactions committed to the ledger.",
			}),
		}
		prometheus.MustRegister(
			rentalRegistry.operations,
			rentalRegistry.failures,
			rentalRegistry.latency,
			rentalRegistry.swept,
			rentalRegistry.height,
		)
	})
	return rentalRegistry
}

func (m *RentalMetrics) ObserveApplied(op string, d time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, "success").Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *RentalMetrics) ObserveRejected(op, kind string, d time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if kind == "" {
		kind = "unknown"
	}
	m.operations.WithLabelValues(op, "error").Inc()
	m.failures.WithLabelValues(op, kind).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *RentalMetrics) AddSwept(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.swept.Add(units)
}

func (m *RentalMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}
