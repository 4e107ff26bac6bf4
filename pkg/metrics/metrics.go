package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topicchat_connections_active",
			Help: "Currently registered websocket connections",
		},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicchat_frames_received_total",
			Help: "Inbound frames by type",
		},
		[]string{"type"},
	)

	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicchat_frames_sent_total",
			Help: "Outbound frames queued by type",
		},
		[]string{"type"},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicchat_send_failures_total",
			Help: "Outbound frames that could not be delivered",
		},
		[]string{"reason"}, // "absent", "buffer_full", "write", "marshal"
	)

	HandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topicchat_handler_panics_total",
			Help: "Recovered panics while handling inbound frames",
		},
	)

	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicchat_streams_total",
			Help: "Chat response streams by final state",
		},
		[]string{"state"},
	)

	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topicchat_stream_duration_seconds",
			Help:    "Time from first to last fragment of a chat response",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
	)

	BackgroundTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicchat_background_tasks_total",
			Help: "Background tasks by outcome",
		},
		[]string{"outcome"}, // "published", "timeout", "publish_error", "cancelled"
	)

	BackgroundTasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topicchat_background_tasks_in_flight",
			Help: "Background tasks that have not finished yet",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topicchat_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
