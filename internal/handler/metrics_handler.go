package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct {
}

var (
	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scalpel_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "path", "status"})

	// Active connections gauge
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scalpel_active_connections",
		Help: "Number of active connections",
	})

	// Total requests counter
	totalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalpel_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	// Batch size histogram, in files per batch
	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scalpel_batch_size_files",
		Help:    "Number of files per processed batch",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})

	// Total files processed across all batches
	filesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalpel_files_processed_total",
		Help: "Total number of files renamed and archived",
	})

	// Compressed archive bytes streamed to clients
	archiveBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalpel_archive_bytes_total",
		Help: "Total compressed archive bytes streamed",
	})

	// Batches rejected before archiving, by cause
	batchesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalpel_batches_rejected_total",
		Help: "Total number of rejected batches",
	}, []string{"reason"})

	// Promo redemptions and payment upgrades
	planUpgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalpel_plan_upgrades_total",
		Help: "Total number of plan upgrades",
	}, []string{"source"})

	// Failed authentication attempts counter
	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalpel_auth_failures_total",
		Help: "Total number of failed authentication attempts",
	}, []string{"reason"})
)

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handler returns the Prometheus metrics handler for Fiber
func (h *MetricsHandler) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		mfs, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return c.Status(500).SendString("Failed to gather metrics")
		}

		// Format as Prometheus text format
		var sb strings.Builder
		for _, mf := range mfs {
			if _, err := expfmt.MetricFamilyToText(&sb, mf); err != nil {
				return c.Status(500).SendString("Failed to format metrics")
			}
		}

		c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		return c.SendString(sb.String())
	}
}

// MetricsMiddleware records HTTP metrics for each request
func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		activeConnections.Inc()
		defer activeConnections.Dec()
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		path := c.Route().Path
		if path == "" {
			path = "__unmatched__"
		}

		statusStr := "200"
		if status >= 200 && status < 300 {
			statusStr = "2xx"
		} else if status >= 300 && status < 400 {
			statusStr = "3xx"
		} else if status >= 400 && status < 500 {
			statusStr = "4xx"
		} else if status >= 500 {
			statusStr = "5xx"
		}

		totalRequests.WithLabelValues(c.Method(), path, statusStr).Inc()
		httpDuration.WithLabelValues(c.Method(), path, statusStr).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordBatchProcessed records a successfully admitted batch.
func RecordBatchProcessed(files int) {
	batchSize.Observe(float64(files))
	filesProcessed.Add(float64(files))
}

// RecordArchiveBytes adds the compressed size of a streamed archive.
func RecordArchiveBytes(n int64) {
	archiveBytes.Add(float64(n))
}

// RecordBatchRejected increments the rejection counter with a cause label.
func RecordBatchRejected(reason string) {
	batchesRejected.WithLabelValues(reason).Inc()
}

// RecordPlanUpgrade records an upgrade by source ("promo" or "payment").
func RecordPlanUpgrade(source string) {
	planUpgrades.WithLabelValues(source).Inc()
}

// RecordAuthFailure increments the failed auth counter with a reason label.
func RecordAuthFailure(reason string) {
	authFailures.WithLabelValues(reason).Inc()
}
