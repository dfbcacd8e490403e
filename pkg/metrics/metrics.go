package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Business metrics
	Attributions        *prometheus.CounterVec
	AttributionAttempts prometheus.Histogram
	CodeValidations     *prometheus.CounterVec
	LedgerTransitions   *prometheus.CounterVec
	CommissionAccrued   *prometheus.CounterVec
	WebhookEvents       *prometheus.CounterVec

	// Generation metrics
	GenerationOutcomes *prometheus.CounterVec
	RecoveryDecisions  *prometheus.CounterVec

	// Database metrics
	DBTxDuration  *prometheus.HistogramVec
	DBConnections prometheus.Gauge

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Business metrics
		Attributions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_attributions_total",
				Help: "Referral attribution calls by outcome",
			},
			[]string{"outcome"}, // attributed, already_attributed, invalid_code, ...
		),
		AttributionAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "referral_attribution_attempts",
			Help:    "Repository attempts needed per attribution",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
		CodeValidations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_code_validations_total",
				Help: "Referral code validations by result",
			},
			[]string{"result"}, // valid, not_found, inactive, expired, exhausted, partner_inactive
		),
		LedgerTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_ledger_transitions_total",
				Help: "Commission ledger entries by resulting status",
			},
			[]string{"status"}, // accrued, paid, reversed, rejected
		),
		CommissionAccrued: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_accrued_minor_units_total",
				Help: "Commission accrued in minor currency units",
			},
			[]string{"currency"},
		),
		WebhookEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Billing webhook events by type and result",
			},
			[]string{"type", "result"},
		),

		// Generation metrics
		GenerationOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_outcomes_total",
				Help: "Caption generation requests by outcome",
			},
			[]string{"outcome"}, // generated, fallback, failed, duplicate
		),
		RecoveryDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_recovery_decisions_total",
				Help: "Error recovery decisions by error kind and action",
			},
			[]string{"kind", "action"},
		),

		// Database metrics
		DBTxDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_tx_duration_seconds",
				Help:    "Database transaction duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		DBConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),

		// Cache metrics
		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			req := c.Request()
			path := c.Path() // Use route pattern, not actual path

			if req.ContentLength > 0 {
				m.HTTPRequestSize.WithLabelValues(req.Method, path).Observe(float64(req.ContentLength))
			}

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// RecordAttribution counts an attribution outcome and the attempts it took
func (m *Metrics) RecordAttribution(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.Attributions.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.AttributionAttempts.Observe(float64(attempts))
	}
}

// RecordCodeValidation counts a code validation result
func (m *Metrics) RecordCodeValidation(result string) {
	if m == nil {
		return
	}
	m.CodeValidations.WithLabelValues(result).Inc()
}

// RecordLedgerTransition counts a ledger entry reaching status
func (m *Metrics) RecordLedgerTransition(status string) {
	if m == nil {
		return
	}
	m.LedgerTransitions.WithLabelValues(status).Inc()
}

// RecordCommissionAccrued adds an accrued commission amount
func (m *Metrics) RecordCommissionAccrued(currency string, amount int64) {
	if m == nil {
		return
	}
	m.CommissionAccrued.WithLabelValues(currency).Add(float64(amount))
}

// RecordWebhookEvent counts a billing webhook event
func (m *Metrics) RecordWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

// RecordGeneration counts a generation outcome
func (m *Metrics) RecordGeneration(outcome string) {
	if m == nil {
		return
	}
	m.GenerationOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRecoveryDecision counts a recovery decision
func (m *Metrics) RecordRecoveryDecision(kind, action string) {
	if m == nil {
		return
	}
	m.RecoveryDecisions.WithLabelValues(kind, action).Inc()
}

// RecordDBTx records transaction duration
func (m *Metrics) RecordDBTx(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DBTxDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	if m == nil {
		return
	}
	m.DBConnections.Set(count)
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cacheType string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
