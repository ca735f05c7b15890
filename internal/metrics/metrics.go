// Package metrics registers the Prometheus collectors the HTTP adapter and
// the query-orchestration core report against, following the stack's
// http_request_duration_seconds/http_requests_total convention.
package metrics

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latencies in seconds",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semantic_cache_lookups_total",
			Help: "Semantic cache probes, partitioned by hit or miss",
		},
		[]string{"result"},
	)

	GroundednessRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundedness_retries_total",
			Help: "Answers regenerated after failing the groundedness check",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(GroundednessRetries)
}

// GinMiddleware records per-request latency and status counts.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		HTTPDuration.WithLabelValues(c.Request.Method, c.FullPath(), fmt.Sprintf("%d", status)).Observe(duration.Seconds())
		HTTPRequests.WithLabelValues(c.Request.Method, c.FullPath(), fmt.Sprintf("%d", status)).Inc()
	}
}
