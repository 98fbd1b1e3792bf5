// Package metrics exposes ledger activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"powershare-ledger/internal/model"
)

// Metrics implements ledger.Observer and events.Reporter. A nil *Metrics
// is safe to call.
type Metrics struct {
	gatherer prometheus.Gatherer

	trades       prometheus.Counter
	unitsSettled prometheus.Counter
	rejections   *prometheus.CounterVec
	gridChanges  prometheus.Counter
	events       *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the ledger collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_trades_total",
			Help: "Trades settled.",
		}),
		unitsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_units_settled_total",
			Help: "Energy units moved by settled trades.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_trade_rejections_total",
			Help: "Buy requests rejected, by error kind.",
		}, []string{"kind"}),
		gridChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_grid_changes_total",
			Help: "Grid records created or modified.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_trade_events_total",
			Help: "Trade events handed to Kafka, by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.trades,
		m.unitsSettled,
		m.rejections,
		m.gridChanges,
		m.events,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) TradeSettled(t model.Transaction) {
	if m == nil {
		return
	}
	m.trades.Inc()
	m.unitsSettled.Add(float64(t.Units))
}

func (m *Metrics) TradeRejected(kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) GridChanged(model.Grid) {
	if m == nil {
		return
	}
	m.gridChanges.Inc()
}

func (m *Metrics) EventPublished(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
