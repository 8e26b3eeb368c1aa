// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BookingAttempts tracks booking attempts by outcome
	// (success, conflict, lock_unavailable, not_found, error).
	BookingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_attempts_total",
			Help: "Total booking attempts by outcome",
		},
		[]string{"outcome"},
	)

	// LockWaitDuration tracks how long booking requests waited for the slot lock.
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booking_lock_wait_seconds",
			Help:    "Time spent waiting for the slot lock in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// CounselingsClosed tracks sessions transitioned OPEN to CLOSED by the reaper.
	CounselingsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counselings_closed_total",
			Help: "Total counseling sessions closed by the reaper",
		},
	)

	// ReaperSweeps tracks reaper runs by result (ok, skipped, error).
	ReaperSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_sweeps_total",
			Help: "Total reaper sweeps by result",
		},
		[]string{"result"},
	)

	// IdempotencyRejections tracks booking requests rejected as duplicates.
	IdempotencyRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_rejections_total",
			Help: "Total requests rejected by the idempotency middleware",
		},
	)

	// HTTPRequestsTotal tracks total HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RegisterMetricsEndpoint registers the /metrics endpoint on a Gin router.
func RegisterMetricsEndpoint(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RecordBookingAttempt records a booking attempt outcome.
func RecordBookingAttempt(outcome string) {
	BookingAttempts.WithLabelValues(outcome).Inc()
}

// RecordLockWait records time spent waiting for the slot lock.
func RecordLockWait(seconds float64) {
	LockWaitDuration.Observe(seconds)
}

// RecordReaperSweep records a reaper sweep result and how many sessions it closed.
func RecordReaperSweep(result string, closed int64) {
	ReaperSweeps.WithLabelValues(result).Inc()
	if closed > 0 {
		CounselingsClosed.Add(float64(closed))
	}
}

// GinMiddleware returns a gin middleware recording per-request metrics.
// It uses the route template, not the raw path, to keep cardinality bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}
