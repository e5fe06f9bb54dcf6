package blogconsole

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the console. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	cacheRequests    *prometheus.CounterVec
	pageCache        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewMetrics registers the console collectors in reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blogconsole_mutations_total",
			Help: "Post mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		mutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogconsole_mutation_duration_seconds",
			Help:    "Time from optimistic apply to resolution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blogconsole_cache_requests_total",
			Help: "Cache reads by collection and result.",
		}, []string{"collection", "result"}),
		pageCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blogconsole_page_cache_requests_total",
			Help: "Storefront page cache lookups by result.",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies by route.
func (m *Metrics) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
		}
		m.httpRequests.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(c.Request().Method, c.Path()).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *Metrics) observeMutation(kind MutationKind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(kind), outcome).Inc()
	if d > 0 {
		m.mutationDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	}
}

func (m *Metrics) observeCache(collection Collection, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(string(collection), result).Inc()
}

func (m *Metrics) observePage(result string) {
	if m == nil {
		return
	}
	m.pageCache.WithLabelValues(result).Inc()
}
