package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Business metrics
	RidesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rides_total",
			Help: "Total number of committed ride transitions",
		},
		[]string{"status"},
	)

	ActiveRidesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_rides_total",
			Help: "Current number of rides held in the in-memory store",
		},
	)

	DispatchRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_rejections_total",
			Help: "Total number of rejected ride transitions",
		},
		[]string{"operation", "reason"},
	)

	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of registered WebSocket connections",
		},
		[]string{"role"},
	)

	// Outbox metrics
	OutboxDepthGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_queue_depth",
			Help: "Current number of snapshots queued for durable write",
		},
	)

	OutboxRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_retries_total",
			Help: "Total number of retried durable writes",
		},
	)

	OutboxDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dropped_total",
			Help: "Total number of snapshots lost to overflow or exhausted retries",
		},
		[]string{"reason"},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_published_total",
			Help: "Total number of messages published to RabbitMQ",
		},
		[]string{"exchange", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordTransition records a committed lifecycle transition
func RecordTransition(status string) {
	RidesTotal.WithLabelValues(status).Inc()
}

// RecordRejection records a rejected transition attempt
func RecordRejection(operation, reason string) {
	DispatchRejectionsTotal.WithLabelValues(operation, reason).Inc()
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(exchange string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RabbitMQMessagesPublished.WithLabelValues(exchange, status).Inc()
}
