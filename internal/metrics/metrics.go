// Package metrics provides Prometheus instrumentation for SafeScope.
package metrics

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safescope",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "safescope",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AssessmentsTotal counts completed assessments by final risk level.
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safescope",
			Name:      "assessments_total",
			Help:      "Total wallet assessments by resulting risk level.",
		},
		[]string{"risk_level"},
	)

	// AssessmentDuration observes end-to-end assessment latency.
	AssessmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "safescope",
			Name:      "assessment_duration_seconds",
			Help:      "End-to-end wallet assessment duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// UpstreamRequestsTotal counts calls to external data sources by outcome.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safescope",
			Name:      "upstream_requests_total",
			Help:      "Calls to upstream data sources by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	// SanctionsHitsTotal counts sanctioned addresses found during screening.
	SanctionsHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "safescope",
			Name:      "sanctions_hits_total",
			Help:      "Total sanctioned addresses detected during screening.",
		},
	)

	// CrossValidationMismatchesTotal counts assessments where the index
	// and the chain disagreed on at least one field.
	CrossValidationMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "safescope",
			Name:      "cross_validation_mismatches_total",
			Help:      "Assessments with at least one index/chain field mismatch.",
		},
	)

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "safescope", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AssessmentsTotal,
		AssessmentDuration,
		UpstreamRequestsTotal,
		SanctionsHitsTotal,
		CrossValidationMismatchesTotal,
		GoroutineCount,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		GoroutineCount.Set(float64(runtime.NumGoroutine()))
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := statusLabel(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveUpstream records one upstream call outcome. Outcome is "ok",
// "error", or "rejected" (circuit open).
func ObserveUpstream(service, outcome string) {
	UpstreamRequestsTotal.WithLabelValues(service, outcome).Inc()
}

func statusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
