package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	custodyRecordsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "custody_records_total",
		Help: "Number of evidence records by status.",
	}, []string{"status"})

	custodyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	custodyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	custodyTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transitions_total",
		Help: "Total custody transitions applied, by event type.",
	}, []string{"event"})

	custodyIntegrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_integrity_checks_total",
		Help: "Total artifact integrity checks by outcome.",
	}, []string{"outcome"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		custodyRequestsTotal.WithLabelValues(method, path, status).Inc()
		custodyRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransition records one applied custody transition.
func RecordTransition(event string) {
	custodyTransitionsTotal.WithLabelValues(event).Inc()
}

// RecordIntegrityCheck records an integrity check result.
func RecordIntegrityCheck(outcome string) {
	custodyIntegrityChecksTotal.WithLabelValues(outcome).Inc()
}

// SetRecordsGauge sets the record count gauge for a given status.
func SetRecordsGauge(status string, count float64) {
	custodyRecordsTotal.WithLabelValues(status).Set(count)
}
