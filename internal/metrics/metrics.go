// Package metrics holds the prometheus collectors shared by the server and
// the worker. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dompet"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	transactionWrites *prometheus.CounterVec
	aiResponses       *prometheus.CounterVec
	syncExports       *prometheus.CounterVec
	rateLimited       prometheus.Counter
	suspicious        prometheus.Counter
}

// New registers every collector on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		transactionWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_writes_total",
			Help:      "Transaction writes by operation and outcome.",
		}, []string{"op", "result"}),
		aiResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_responses_created_total",
			Help:      "AI responses created by trigger and outcome.",
		}, []string{"trigger", "result"}),
		syncExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "exports_total",
			Help:      "Sheets exports by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		suspicious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "suspicious_requests_total",
			Help:      "Requests flagged by the security detector.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.transactionWrites,
		m.aiResponses,
		m.syncExports,
		m.rateLimited,
		m.suspicious,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one finished request. route should be the matched
// mux pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) TransactionWrite(op string, err error) {
	if m == nil {
		return
	}
	m.transactionWrites.WithLabelValues(op, result(err)).Inc()
}

// AIResponseCreated records a create triggered from "ui", "api" or "cron".
func (m *Metrics) AIResponseCreated(trigger string, err error) {
	if m == nil {
		return
	}
	m.aiResponses.WithLabelValues(trigger, result(err)).Inc()
}

// SyncExport records the outcome of one export attempt: exported, skipped,
// superseded or error.
func (m *Metrics) SyncExport(outcome string) {
	if m == nil {
		return
	}
	m.syncExports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) SuspiciousRequest() {
	if m == nil {
		return
	}
	m.suspicious.Inc()
}

// RegisterCache exports hit and miss counts of a named cache. stats is read
// on every scrape.
func (m *Metrics) RegisterCache(name string, stats func() (hits, misses int64)) error {
	if m == nil {
		return nil
	}
	labels := prometheus.Labels{"cache": name}
	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hits_total",
		Help:        "Cache hits.",
		ConstLabels: labels,
	}, func() float64 {
		h, _ := stats()
		return float64(h)
	})
	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "misses_total",
		Help:        "Cache misses.",
		ConstLabels: labels,
	}, func() float64 {
		_, mi := stats()
		return float64(mi)
	})
	if err := m.registry.Register(hits); err != nil {
		return err
	}
	return m.registry.Register(misses)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
