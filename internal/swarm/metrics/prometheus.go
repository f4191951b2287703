package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swarmer"

// Collector exports live run metrics in the Prometheus format.
//
// Each Collector owns its registry so that several runs in one process,
// tests included, never clash on registration.
type Collector struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	activeUsers prometheus.Gauge
}

// NewCollector creates a Collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests completed, by request name and status code (0 for transport errors).",
		}, []string{"name", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"name"}),
		activeUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_users",
			Help:      "Virtual users currently running.",
		}),
	}
}

// ObserveRequest records one completed request.
func (c *Collector) ObserveRequest(name string, status int, d time.Duration) {
	c.requests.WithLabelValues(name, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(name).Observe(d.Seconds())
}

// SetActiveUsers sets the active users gauge.
func (c *Collector) SetActiveUsers(n int) {
	c.activeUsers.Set(float64(n))
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
