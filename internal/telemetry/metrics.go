// Package telemetry provides application-level observability for the EasyBits
// storage core.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<EB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped every 15–60 seconds.  It is
// NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Upload grant and download URL counters
//   - Storage backend operation counters and error counters
//   - Purge job counters
//   - SSE subscriber gauge
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v2/files/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as file ids.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}. The
// path label holds the Gin route template, NOT the raw URL.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and
// exponential-ish buckets from 5 ms to 30 s.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// File lifecycle metrics.
//
// UploadGrantsTotal counts presigned upload URLs issued, labelled by kind
// ("single" or "multipart"). DownloadURLsTotal counts presigned GET URLs
// issued, labelled by access ("owner", "public", "share").
//
// Example PromQL queries:
//   - Upload rate by kind:  sum by (kind) (rate(upload_grants_total[1h]))
//   - Share-link usage:     rate(download_urls_total{access="share"}[1h])
var (
	UploadGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_grants_total",
			Help: "Total number of presigned upload URLs issued, by upload kind.",
		},
		[]string{"kind"},
	)

	DownloadURLsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "download_urls_total",
			Help: "Total number of presigned download URLs issued, by access kind.",
		},
		[]string{"access"},
	)
)

// Storage backend metrics — labelled by backend type (s3, tigris, local).
//
// StorageOpsTotal counts every call into a storage client, labelled by
// {backend, op}. StorageOpErrorsTotal counts the failed subset with the same
// labels; an alert on its rate catches misconfigured user providers early.
//
// Example PromQL queries:
//   - Error ratio per backend:  sum by (backend) (rate(storage_op_errors_total[5m])) / sum by (backend) (rate(storage_ops_total[5m]))
var (
	StorageOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_ops_total",
			Help: "Total number of storage backend operations, by backend type and operation.",
		},
		[]string{"backend", "op"},
	)

	StorageOpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_op_errors_total",
			Help: "Total number of failed storage backend operations, by backend type and operation.",
		},
		[]string{"backend", "op"},
	)
)

// Purge job metrics.
//
// FilesPurgedTotal counts files permanently removed by the purge job.
// PurgeRunDuration observes one complete purge pass.
//
// Example PromQL queries:
//   - Daily purge volume:  increase(files_purged_total[24h])
//   - p95 purge duration:  histogram_quantile(0.95, rate(purge_run_duration_seconds_bucket[24h]))
var (
	FilesPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "files_purged_total",
			Help: "Total number of files permanently removed after retention expiry.",
		},
	)

	PurgeRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "purge_run_duration_seconds",
			Help:    "Duration of a single purge job pass.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// SSESubscribers is a Gauge tracking currently connected event-stream
// clients. A sawtooth pattern here with a flat request rate usually means a
// proxy is dropping long-lived connections.
var SSESubscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "sse_subscribers",
		Help: "Current number of connected server-sent event subscribers.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections
// currently held by the sql.DB connection pool.  It is sampled every 30
// seconds by StartDBStatsCollector rather than per-request to avoid the
// overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <EB_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates the
// DBOpenConnections gauge. The goroutine exits cleanly when the database
// becomes unreachable (db.Ping fails), which happens automatically when the
// application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
