package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/chat-moderation/internal/infra/telemetry"
)

// HTTPMetricsOptions configures the HTTP metrics middleware.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Buckets    []float64
}

// HTTPMetrics exposes Prometheus collectors for request instrumentation.
// Rejections counts refused requests separately so a burst of failed
// privilege checks stands out from ordinary traffic.
type HTTPMetrics struct {
	Requests   *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Rejections *prometheus.CounterVec
	InFlight   prometheus.Gauge
}

var httpLatencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// NewHTTPMetrics registers the chat_http_* collectors.
func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = httpLatencyBuckets
	}
	labels := []string{"method", "route", "status"}

	requests, err := telemetry.Register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, labels))
	if err != nil {
		return nil, fmt.Errorf("http requests: %w", err)
	}

	duration, err := telemetry.Register(opts.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chat",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route and status code.",
		Buckets:   buckets,
	}, labels))
	if err != nil {
		return nil, fmt.Errorf("http duration: %w", err)
	}

	rejections, err := telemetry.Register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "http",
		Name:      "rejections_total",
		Help:      "Refused HTTP requests by route and reason.",
	}, []string{"route", "reason"}))
	if err != nil {
		return nil, fmt.Errorf("http rejections: %w", err)
	}

	inFlight, err := telemetry.Register[prometheus.Gauge](opts.Registerer, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "HTTP requests currently being served.",
	}))
	if err != nil {
		return nil, fmt.Errorf("http inflight: %w", err)
	}

	return &HTTPMetrics{
		Requests:   requests,
		Duration:   duration,
		Rejections: rejections,
		InFlight:   inFlight,
	}, nil
}

// rejectionReason maps a refusal status to its label; ok is false for everything else.
func rejectionReason(status int) (reason string, ok bool) {
	switch status {
	case http.StatusBadRequest:
		return "invalid", true
	case http.StatusUnauthorized:
		return "unauthorized", true
	case http.StatusForbidden:
		return "forbidden", true
	case http.StatusTooManyRequests:
		return "rate_limited", true
	default:
		return "", false
	}
}

// Handler returns a Gin middleware that records the HTTP metrics.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		c.Next()

		route := routeLabel(c)
		status := c.Writer.Status()
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}

		m.Requests.With(labels).Inc()
		m.Duration.With(labels).Observe(time.Since(start).Seconds())
		if reason, ok := rejectionReason(status); ok {
			m.Rejections.WithLabelValues(route, reason).Inc()
		}
	}
}
