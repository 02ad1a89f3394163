// Package metrics provides Prometheus metrics collection for the health post API.
// HTTP series:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Domain series cover classifications, inventory mutations, shortfalls and
// the stock sweep gauges.
//
// All metrics are automatically registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinical_classifications_total",
			Help: "Classification labels emitted",
		},
		[]string{"label"},
	)

	WAZEstimatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinical_waz_estimates_total",
			Help: "Weight-for-age estimates by category",
		},
		[]string{"category"},
	)

	InventoryMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_mutations_total",
			Help: "Lot mutations applied to the store",
		},
		[]string{"kind"},
	)

	InventoryShortfallTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_shortfall_total",
			Help: "Requested quantity that could not be served",
		},
	)

	InventoryExpiringLots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_expiring_lots",
			Help: "Lots expired or inside the expiry warning window at the last sweep",
		},
	)

	InventoryLowStockItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_low_stock_items",
			Help: "Items at or below the low stock threshold at the last sweep",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(WAZEstimatesTotal)
	prometheus.MustRegister(InventoryMutationsTotal)
	prometheus.MustRegister(InventoryShortfallTotal)
	prometheus.MustRegister(InventoryExpiringLots)
	prometheus.MustRegister(InventoryLowStockItems)
}
