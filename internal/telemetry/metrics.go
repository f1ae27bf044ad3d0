package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP API metrics.
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ytstream_api_request_duration_seconds",
		Help:    "HTTP request latency by method, endpoint and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status_code"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytstream_api_requests_total",
		Help: "Total HTTP requests by method, endpoint and status code",
	}, []string{"method", "endpoint", "status_code"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytstream_api_active_connections",
		Help: "HTTP requests currently in flight",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytstream_api_websocket_connections",
		Help: "Open event stream WebSocket connections",
	})
)

// Database metrics.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ytstream_database_query_duration_seconds",
		Help:    "Database operation latency by operation and table",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytstream_database_errors_total",
		Help: "Total database errors by operation and error type",
	}, []string{"operation", "error_type"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytstream_database_connections_active",
		Help: "Open database connections",
	})
)

// Stream orchestration metrics.
var (
	StreamState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ytstream_stream_state",
		Help: "Current supervisor state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	StreamRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytstream_stream_restarts_total",
		Help: "Total stream restarts by reason",
	}, []string{"reason"})

	StreamUptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytstream_stream_uptime_seconds",
		Help: "Seconds since the current run went live",
	})

	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytstream_pipeline_runs_total",
		Help: "Total encode pipeline runs by outcome",
	}, []string{"outcome"})

	PipelineFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytstream_pipeline_fps",
		Help: "Encoder output frame rate reported by the last progress sample",
	})

	PipelineBitrateKbps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytstream_pipeline_bitrate_kbps",
		Help: "Encoder output bitrate reported by the last progress sample",
	})
)

// Health metrics.
var (
	HealthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytstream_health_score",
		Help: "Composite stream health score from 0 to 100",
	})

	HealthAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytstream_health_alerts_total",
		Help: "Total health alerts by reason",
	}, []string{"reason"})
)

// Coordination metrics.
var (
	SinkLeaseHeld = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ytstream_sink_lease_held",
		Help: "Whether this instance holds the sink credential lease",
	}, []string{"instance"})
)

// Delivery metrics.
var (
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytstream_webhook_deliveries_total",
		Help: "Total webhook deliveries by outcome",
	}, []string{"outcome"})

	MediaUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytstream_media_uploads_total",
		Help: "Total media uploads by kind",
	}, []string{"kind"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
