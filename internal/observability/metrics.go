package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reactive_engine"

// Metrics exposes Prometheus collectors for HTTP traffic and engine activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec

	mergesScheduled prometheus.Counter
	mergesExecuted  *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
	gateWarnings    *prometheus.CounterVec
	lockAttempts    *prometheus.CounterVec
	webhookDupes    prometheus.Counter
	janitorPurged   *prometheus.CounterVec
}

// NewMetrics registers every collector on reg. Passing nil creates a private
// registry, which keeps tests independent of each other.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP error responses by route, method and error code.",
		}, []string{"path", "method", "code"}),
		mergesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "scheduled_total",
			Help:      "Merges scheduled or rescheduled after a new ticket arrived.",
		}),
		mergesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "executed_total",
			Help:      "Merge executions by outcome.",
		}, []string{"outcome"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound_gate",
			Name:      "decisions_total",
			Help:      "Outbound gate decisions.",
		}, []string{"decision"}),
		gateWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound_gate",
			Name:      "warnings_total",
			Help:      "Outbound gate warnings by type.",
		}, []string{"type"}),
		lockAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "attempts_total",
			Help:      "Agent lock attempts by result.",
		}, []string{"result"}),
		webhookDupes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "duplicates_total",
			Help:      "Duplicate ticket-created deliveries that were absorbed.",
		}),
		janitorPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      "purged_total",
			Help:      "Expired records removed by the janitor.",
		}, []string{"store"}),
	}
	reg.MustRegister(
		m.requestCount, m.requestDuration, m.errorCount,
		m.mergesScheduled, m.mergesExecuted,
		m.gateDecisions, m.gateWarnings,
		m.lockAttempts, m.webhookDupes, m.janitorPurged,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

func (m *Metrics) MergeScheduled() {
	if m == nil {
		return
	}
	m.mergesScheduled.Inc()
}

// MergeExecuted records a merge outcome: merged, none or failed.
func (m *Metrics) MergeExecuted(outcome string) {
	if m == nil {
		return
	}
	m.mergesExecuted.WithLabelValues(outcome).Inc()
}

// GateDecision records an outbound gate result and its warnings.
func (m *Metrics) GateDecision(decision string, warningTypes ...string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(decision).Inc()
	for _, t := range warningTypes {
		m.gateWarnings.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) LockAttempt(result string) {
	if m == nil {
		return
	}
	m.lockAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) WebhookDuplicate() {
	if m == nil {
		return
	}
	m.webhookDupes.Inc()
}

func (m *Metrics) JanitorPurged(store string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.janitorPurged.WithLabelValues(store).Add(float64(n))
}
