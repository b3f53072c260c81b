package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Currently open websocket connections",
		},
	)

	ChatsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_chats_created_total",
			Help: "Total chats created",
		},
		[]string{"type"}, // "direct" or "group"
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total messages stored",
		},
		[]string{"kind"}, // "text", "media", "reply", "forward"
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_read_receipts_total",
			Help: "Total read receipts created",
		},
	)

	FanoutDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_fanout_deliveries_total",
			Help: "Live events delivered to a connection",
		},
	)

	FanoutMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_fanout_misses_total",
			Help: "Participants offline at fan-out time (not an error)",
		},
	)
)
