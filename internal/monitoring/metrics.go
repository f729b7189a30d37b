package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Ledger metrics
	CoinsCredited *prometheus.CounterVec
	CoinsDebited  *prometheus.CounterVec

	// Payment metrics
	PaymentEvents   *prometheus.CounterVec
	DuplicateEvents prometheus.Counter
	ProviderLatency *prometheus.HistogramVec

	// Business metrics
	GiftsTotal          prometheus.Counter
	RedemptionsResolved *prometheus.CounterVec
	AccountsProvisioned prometheus.Counter

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Ledger metrics
		CoinsCredited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coins_credited_total",
				Help: "Total coins credited, by transaction type",
			},
			[]string{"tx_type"},
		),
		CoinsDebited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coins_debited_total",
				Help: "Total coins debited, by transaction type",
			},
			[]string{"tx_type"},
		),

		// Payment metrics
		PaymentEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_events_total",
				Help: "Total payment provider events, by outcome and result",
			},
			[]string{"outcome", "result"},
		),
		DuplicateEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payment_duplicate_events_total",
				Help: "Total duplicate payment events absorbed",
			},
		),
		ProviderLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_provider_latency_seconds",
				Help:    "Payment provider response latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),

		// Business metrics
		GiftsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gifts_total",
				Help: "Total number of gifts delivered",
			},
		),
		RedemptionsResolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redemptions_resolved_total",
				Help: "Total redemption requests resolved, by outcome",
			},
			[]string{"status"},
		),
		AccountsProvisioned: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "accounts_provisioned_total",
				Help: "Total creator accounts auto-provisioned",
			},
		),

		// Circuit breaker metrics
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"name"},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		// Track in-flight requests
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// Process request
		c.Next()

		// Record metrics
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordCoinsCredited records a ledger credit
func RecordCoinsCredited(txType string, amount int64) {
	Get().CoinsCredited.WithLabelValues(txType).Add(float64(amount))
}

// RecordCoinsDebited records a ledger debit
func RecordCoinsDebited(txType string, amount int64) {
	Get().CoinsDebited.WithLabelValues(txType).Add(float64(amount))
}

// RecordPaymentEvent records an inbound payment event
func RecordPaymentEvent(outcome, result string) {
	Get().PaymentEvents.WithLabelValues(outcome, result).Inc()
}

// RecordDuplicateEvent records a duplicate payment event delivery
func RecordDuplicateEvent() {
	Get().DuplicateEvents.Inc()
}

// RecordProviderLatency records a payment provider call duration
func RecordProviderLatency(operation string, duration time.Duration) {
	Get().ProviderLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordGift records a delivered gift
func RecordGift() {
	Get().GiftsTotal.Inc()
}

// RecordRedemptionResolved records a resolved redemption request
func RecordRedemptionResolved(status string) {
	Get().RedemptionsResolved.WithLabelValues(status).Inc()
}

// RecordAccountProvisioned records an auto-provisioned creator account
func RecordAccountProvisioned() {
	Get().AccountsProvisioned.Inc()
}

// SetCircuitBreakerState sets the state gauge for a named breaker
func SetCircuitBreakerState(name string, state float64) {
	Get().CircuitBreakerState.WithLabelValues(name).Set(state)
}
