package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAttribution(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAttribution("attributed", 1)
	m.RecordAttribution("attributed", 2)
	m.RecordAttribution("invalid_code", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Attributions.WithLabelValues("attributed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attributions.WithLabelValues("invalid_code")))
}

func TestRecordLedgerAndCommission(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordLedgerTransition("accrued")
	m.RecordCommissionAccrued("usd", 599)
	m.RecordCommissionAccrued("usd", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerTransitions.WithLabelValues("accrued")))
	assert.Equal(t, 600.0, testutil.ToFloat64(m.CommissionAccrued.WithLabelValues("usd")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordAttribution("attributed", 1)
		m.RecordCodeValidation("valid")
		m.RecordLedgerTransition("paid")
		m.RecordCommissionAccrued("usd", 10)
		m.RecordWebhookEvent("invoice.paid", "ok")
		m.RecordGeneration("generated")
		m.RecordRecoveryDecision("timeout", "retry_backoff")
		m.RecordDBTx("attribute", time.Millisecond)
		m.UpdateDBConnections(3)
		m.RecordCacheHit("redis")
		m.RecordCacheMiss("redis")
	})
}

func TestMiddleware(t *testing.T) {
	m := New(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
}

func TestNewRegistersOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
