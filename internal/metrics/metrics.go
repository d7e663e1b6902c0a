package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	busMessages       *prometheus.CounterVec
	routerErrors      *prometheus.CounterVec
	alerts            *prometheus.CounterVec
	publishes         *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		busMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smarthome_bus_messages_total",
			Help: "Inbound bus messages by topic.",
		}, []string{"topic"}),
		routerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smarthome_router_errors_total",
			Help: "Inbound bus messages whose handler failed, by topic.",
		}, []string{"topic"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smarthome_alerts_total",
			Help: "Alert notifications by result (sent, failed).",
		}, []string{"result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smarthome_bus_publish_total",
			Help: "Outbound bus publishes by topic and result (ok, error).",
		}, []string{"topic", "result"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.busMessages,
		m.routerErrors,
		m.alerts,
		m.publishes,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BusMessage(topic string) {
	if m == nil {
		return
	}
	m.busMessages.WithLabelValues(topic).Inc()
}

func (m *Metrics) RouterError(topic string) {
	if m == nil {
		return
	}
	m.routerErrors.WithLabelValues(topic).Inc()
}

func (m *Metrics) Alert(err error) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(result(err, "sent", "failed")).Inc()
}

func (m *Metrics) Publish(topic string, err error) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(topic, result(err, "ok", "error")).Inc()
}

func result(err error, ok, failed string) string {
	if err != nil {
		return failed
	}
	return ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Instrument records count and latency of next under route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
