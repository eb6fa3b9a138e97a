package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the scan service. Each
// instance owns its registry so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Scans         *prometheus.CounterVec
	ParseErrors   prometheus.Counter
	RuleReloads   *prometheus.CounterVec
	ActiveRules   *prometheus.GaugeVec
	HTTPRequests  *prometheus.CounterVec
	ScanLatency   prometheus.Histogram
	RateLimited   prometheus.Counter
	ActiveClients prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Scans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scanned records by verdict.",
		}, []string{"verdict"}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Records whose payload could not be decoded.",
		}),
		RuleReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_reloads_total",
			Help:      "Rules file reloads by result.",
		}, []string{"result"}),
		ActiveRules: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rules",
			Help:      "Rules in the active catalog by kind.",
		}, []string{"kind"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		ScanLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_latency_ms",
			Help:      "Time spent scanning a single record in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}),
	}
}

// ObserveScan records one scan verdict and its latency.
func (m *Metrics) ObserveScan(isPII bool, d time.Duration) {
	verdict := "clean"
	if isPII {
		verdict = "pii"
	}
	m.Scans.WithLabelValues(verdict).Inc()
	m.ScanLatency.Observe(float64(d.Microseconds()) / 1000)
}

func (m *Metrics) ObserveRequest(route string, code int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveReload records a reload attempt. Rule counts are only updated on
// success.
func (m *Metrics) ObserveReload(ok bool, standalone, combinatorial int) {
	if !ok {
		m.RuleReloads.WithLabelValues("failure").Inc()
		return
	}
	m.RuleReloads.WithLabelValues("success").Inc()
	m.SetActiveRules(standalone, combinatorial)
}

func (m *Metrics) SetActiveRules(standalone, combinatorial int) {
	m.ActiveRules.WithLabelValues("standalone").Set(float64(standalone))
	m.ActiveRules.WithLabelValues("combinatorial").Set(float64(combinatorial))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
