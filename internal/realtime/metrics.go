package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	// wsConns gauges currently registered connections.
	wsConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Current number of admitted WebSocket connections.",
		},
	)

	// wsEvents counts inbound events by type and outcome. Both label sets
	// are closed: type is one of message/read/unknown/malformed, outcome is
	// ok/replayed/rejected/error.
	wsEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Inbound WebSocket events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// fanoutDeliveries counts per-recipient delivery attempts.
	fanoutDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_deliveries_total",
			Help: "Broadcast deliveries by result (delivered, dropped).",
		},
		[]string{"result"},
	)

	// registryConversations gauges conversations with at least one live connection.
	registryConversations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_registry_conversations",
			Help: "Conversations with at least one live connection.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConns, wsEvents, fanoutDeliveries, registryConversations)
}
