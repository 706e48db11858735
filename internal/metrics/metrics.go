package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_connections_total",
			Help: "Total websocket connections accepted",
		},
	)

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_connections_active",
			Help: "Currently open websocket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_rooms_active",
			Help: "Rooms with live state",
		},
	)

	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_messages_relayed_total",
			Help: "Total messages accepted and broadcast",
		},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_delivery_failures_total",
			Help: "Per-recipient delivery failures",
		},
		[]string{"reason"}, // "decrypt", "internal", or "send"
	)

	TypingNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_typing_notifications_total",
			Help: "Typing state change notifications emitted",
		},
	)

	HistoryReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_history_replayed_total",
			Help: "Messages replayed to joining members",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huddle_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DirectoryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huddle_directory_latency_seconds",
			Help:    "Room directory query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
