package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	httpRequestSizeBytes *prometheus.HistogramVec

	// Mail delivery metrics
	mailSendTotal       *prometheus.CounterVec
	mailSendDuration    *prometheus.HistogramVec
	mailAttachmentBytes prometheus.Histogram
)

// MetricsMiddleware collects request metrics for monitoring.
//
// Metrics collected:
// - http_requests_total (counter) - labels: method, path, status
// - http_request_duration_seconds (histogram) - labels: method, path
// - http_requests_in_flight (gauge)
// - http_request_size_bytes (histogram) - labels: method, path
//
// Usage in server setup:
//   e.Use(middleware.MetricsMiddleware())
//   e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skip metrics endpoint itself to avoid recursion
			if c.Path() == "/metrics" {
				return next(c)
			}

			start := time.Now()

			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			requestSize := float64(c.Request().ContentLength)
			if requestSize < 0 {
				requestSize = 0
			}

			err := next(c)

			duration := time.Since(start).Seconds()
			method := c.Request().Method
			path := c.Path()
			status := strconv.Itoa(c.Response().Status)

			httpRequestsTotal.WithLabelValues(method, path, status).Inc()
			httpRequestDuration.WithLabelValues(method, path).Observe(duration)
			httpRequestSizeBytes.WithLabelValues(method, path).Observe(requestSize)

			return err
		}
	}
}

// InitMetrics registers all Prometheus collectors. Call once during startup
// before MetricsMiddleware.
func InitMetrics() {
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 90.0},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	httpRequestSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8), // 100B to 10MB
		},
		[]string{"method", "path"},
	)

	mailSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_send_total",
			Help: "Total number of mail submissions",
		},
		[]string{"provider", "status"},
	)

	mailSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_send_duration_seconds",
			Help:    "Mail submission duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 90.0},
		},
		[]string{"provider"},
	)

	mailAttachmentBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mail_attachment_bytes",
			Help:    "Total decoded attachment bytes per submitted message",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KB to 16MB
		},
	)
}

// RecordMailSend records the outcome of one mail submission.
//
// Usage in the relay handler:
//   middleware.RecordMailSend(mailer.Name(), time.Since(start).Seconds(), totalBytes, err)
func RecordMailSend(provider string, duration float64, attachmentBytes int64, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}

	mailSendTotal.WithLabelValues(provider, status).Inc()
	mailSendDuration.WithLabelValues(provider).Observe(duration)
	if err == nil {
		mailAttachmentBytes.Observe(float64(attachmentBytes))
	}
}
