package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powershare-ledger/internal/model"
)

func TestMetricsCountLedgerActivity(t *testing.T) {
	m := New()
	m.TradeSettled(model.Transaction{Units: 5})
	m.TradeSettled(model.Transaction{Units: 7})
	m.TradeRejected("INSUFFICIENT_SUPPLY")
	m.TradeRejected("INSUFFICIENT_SUPPLY")
	m.TradeRejected("SELF_TRADE")
	m.GridChanged(model.Grid{})
	m.EventPublished("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.trades))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.unitsSettled))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rejections.WithLabelValues("INSUFFICIENT_SUPPLY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("SELF_TRADE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gridChanges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("ok")))
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.TradeSettled(model.Transaction{Units: 3})
	m.ObserveRequest("/api/v1/energypool/buy", http.StatusOK, 12*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ledger_trades_total 1")
	assert.Contains(t, body, `http_requests_total{route="/api/v1/energypool/buy",status="200"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TradeSettled(model.Transaction{Units: 1})
		m.TradeRejected("NOT_FOUND")
		m.GridChanged(model.Grid{})
		m.EventPublished("ok")
		m.ObserveRequest("/", 200, time.Millisecond)
	})
}
