package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat message outcomes.
const (
	OutcomePersisted = "persisted"
	OutcomeDropped   = "dropped"
	OutcomeRejected  = "rejected"
)

// Metrics owns the service's Prometheus registry. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	chatConnections prometheus.Gauge
	chatMessages    *prometheus.CounterVec
	chatEvictions   prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	chatConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections",
		Help: "Currently connected chat participants",
	})

	chatMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Chat messages by outcome",
	}, []string{"outcome"})

	chatEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_evictions_total",
		Help: "Chat participants disconnected because their send buffer was full",
	})

	registry.MustRegister(
		requestDuration,
		requestTotal,
		chatConnections,
		chatMessages,
		chatEvictions,
		collectors.NewGoCollector(),
	)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		chatConnections: chatConnections,
		chatMessages:    chatMessages,
		chatEvictions:   chatEvictions,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

func (m *Metrics) ChatConnected() {
	if m == nil {
		return
	}
	m.chatConnections.Inc()
}

func (m *Metrics) ChatDisconnected() {
	if m == nil {
		return
	}
	m.chatConnections.Dec()
}

func (m *Metrics) ChatMessage(outcome string) {
	if m == nil {
		return
	}
	m.chatMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ChatEvicted() {
	if m == nil {
		return
	}
	m.chatEvictions.Inc()
}
