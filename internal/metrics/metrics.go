// Package metrics exposes Prometheus counters for probes and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the proxy. It uses its own
// registry so several instances can coexist in tests.
type Collector struct {
	registry      *prometheus.Registry
	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram
	requestsTotal *prometheus.CounterVec
}

// New creates a Collector and registers its metrics along with the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pingproxy_probes_total",
				Help: "Total number of ping probes by outcome.",
			},
			[]string{"status"},
		),
		probeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pingproxy_probe_duration_seconds",
				Help:    "Duration of router ping probes in seconds.",
				Buckets: []float64{0.5, 1, 2, 3, 4, 5, 7.5, 10, 15},
			},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pingproxy_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
	}

	c.registry.MustRegister(
		c.probesTotal,
		c.probeDuration,
		c.requestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveProbe records the outcome and duration of one probe.
func (c *Collector) ObserveProbe(status string, d time.Duration) {
	c.probesTotal.WithLabelValues(status).Inc()
	c.probeDuration.Observe(d.Seconds())
}

// ObserveRequest counts one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, code int) {
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// Handler returns an http.Handler that serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
