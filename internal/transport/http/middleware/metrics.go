package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics exposes Prometheus collectors for request instrumentation.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics constructs and registers collectors for HTTP request
// metrics. Passing a nil registerer uses the default one. Re-registration
// reuses the existing collectors, so tests can build multiple engines.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authz",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authz",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "authz",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	if err := register(reg, requests, func(c prometheus.Collector) bool {
		existing, ok := c.(*prometheus.CounterVec)
		if ok {
			requests = existing
		}
		return ok
	}); err != nil {
		return nil, err
	}

	if err := register(reg, duration, func(c prometheus.Collector) bool {
		existing, ok := c.(*prometheus.HistogramVec)
		if ok {
			duration = existing
		}
		return ok
	}); err != nil {
		return nil, err
	}

	if err := register(reg, inFlight, func(c prometheus.Collector) bool {
		existing, ok := c.(prometheus.Gauge)
		if ok {
			inFlight = existing
		}
		return ok
	}); err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		Requests: requests,
		Duration: duration,
		InFlight: inFlight,
	}, nil
}

func register(reg prometheus.Registerer, collector prometheus.Collector, adopt func(prometheus.Collector) bool) error {
	err := reg.Register(collector)
	if err == nil {
		return nil
	}

	if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if adopt(already.ExistingCollector) {
			return nil
		}
		return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
	}

	return fmt.Errorf("register collector: %w", err)
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
		if m.InFlight != nil {
			m.InFlight.Inc()
			defer m.InFlight.Dec()
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}

		if m.Requests != nil {
			m.Requests.With(labels).Inc()
		}

		if m.Duration != nil {
			m.Duration.With(labels).Observe(time.Since(start).Seconds())
		}
	}
}
