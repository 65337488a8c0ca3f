package observ

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OpenConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portalchat_open_connections",
			Help: "Number of sockets currently registered on this instance.",
		},
	)

	MessagesRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalchat_messages_routed_total",
			Help: "Messages persisted and dispatched, by kind.",
		},
		[]string{"kind"},
	)

	NotificationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portalchat_notifications_created_total",
			Help: "Offline notifications written for disconnected recipients.",
		},
	)

	FanoutFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portalchat_fanout_send_failures_total",
			Help: "Per-connection sends that failed during fan-out.",
		},
	)

	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalchat_frames_dropped_total",
			Help: "Inbound frames dropped, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(OpenConnections)
	prometheus.MustRegister(MessagesRouted)
	prometheus.MustRegister(NotificationsCreated)
	prometheus.MustRegister(FanoutFailures)
	prometheus.MustRegister(FramesDropped)
}
