package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quayside/cutover/pkg/types"
)

var (
	// Operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutover_operations_total",
			Help: "Total number of operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cutover_operation_duration_seconds",
			Help:    "Operation duration in seconds by operation",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"operation"},
	)

	OperationInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cutover_operation_in_flight",
			Help: "Whether a deploy/switch/rollback is currently running (0 or 1)",
		},
	)

	// Color state metrics
	ActiveColor = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cutover_active_color",
			Help: "Which color is live (1 for the active color, 0 for the other)",
		},
		[]string{"color"},
	)

	LastSwitchTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cutover_last_switch_timestamp_seconds",
			Help: "Unix timestamp of the last successful traffic switch",
		},
	)

	// Health metrics
	ColorHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cutover_color_healthy",
			Help: "Whether a color's backend answers its health endpoint (0 or 1)",
		},
		[]string{"color"},
	)

	RoutedHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cutover_routed_healthy",
			Help: "Whether the public route answers through the proxy (0 or 1)",
		},
	)

	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cutover_probe_duration_seconds",
			Help:    "Health probe duration in seconds by color",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"color"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(OperationInFlight)
	prometheus.MustRegister(ActiveColor)
	prometheus.MustRegister(LastSwitchTimestamp)
	prometheus.MustRegister(ColorHealthy)
	prometheus.MustRegister(RoutedHealthy)
	prometheus.MustRegister(ProbeDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperation counts one finished operation and observes its duration.
func RecordOperation(op types.Operation, outcome types.Outcome, duration time.Duration) {
	OperationsTotal.WithLabelValues(string(op), string(outcome)).Inc()
	OperationDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
}

// SetActiveColor updates both per-color gauges so exactly one reads 1.
func SetActiveColor(active types.Color) {
	for _, color := range []types.Color{types.ColorBlue, types.ColorGreen} {
		value := 0.0
		if color == active {
			value = 1.0
		}
		ActiveColor.WithLabelValues(color.String()).Set(value)
	}
}

// SetColorHealth updates a color's backend health gauge.
func SetColorHealth(color types.Color, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	ColorHealthy.WithLabelValues(color.String()).Set(value)
}

// SetRoutedHealth updates the public route health gauge.
func SetRoutedHealth(healthy bool) {
	if healthy {
		RoutedHealthy.Set(1)
	} else {
		RoutedHealthy.Set(0)
	}
}

// ObserveProbe records one probe's latency for a color.
func ObserveProbe(color types.Color, latency time.Duration) {
	ProbeDuration.WithLabelValues(color.String()).Observe(latency.Seconds())
}
