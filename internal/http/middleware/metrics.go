package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that hit no registered route, so probing
// random URLs cannot grow label cardinality.
const unmatchedRoute = "unmatched"

// httpMetrics groups the REST collectors under chat_http_*. Labels are the
// method, the registered Gin route and, for the counter only, the status.
type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inflight prometheus.Gauge
	respSize *prometheus.HistogramVec
}

func newHTTPMetrics() *httpMetrics {
	const ns, sub = "chat", "http"
	route := []string{"method", "route"}
	return &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "requests_total",
			Help: "REST requests by method, route and status.",
		}, append(route, "status")),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "request_duration_seconds",
			Help:    "REST request latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, route),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "requests_inflight",
			Help: "REST requests currently being served.",
		}),
		respSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "response_size_bytes",
			Help:    "REST response body size.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 7), // 256B..1MiB
		}, route),
	}
}

func (m *httpMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.latency, m.inflight, m.respSize}
}

func (m *httpMetrics) observe(method, route string, status, size int, took time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(took.Seconds())
	if size >= 0 {
		m.respSize.WithLabelValues(method, route).Observe(float64(size))
	}
}

var restMetrics = newHTTPMetrics()

func init() {
	prometheus.MustRegister(restMetrics.collectors()...)
}

// Metrics records Prometheus metrics for every request except those whose
// route is listed in skip. The socket route belongs there: its duration is
// the connection lifetime and has its own gauges in the realtime package.
func Metrics(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		if skipped[c.FullPath()] {
			c.Next()
			return
		}
		restMetrics.inflight.Inc()
		start := time.Now()
		defer func() {
			restMetrics.inflight.Dec()
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			restMetrics.observe(c.Request.Method, route, c.Writer.Status(), c.Writer.Size(), time.Since(start))
		}()
		c.Next()
	}
}
