package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectedClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "broadcaster",
		Subsystem: "hub",
		Name:      "connected_clients",
		Help:      "Currently connected WebSocket subscribers",
	},
)

var messagesDelivered = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "hub",
		Name:      "messages_delivered_total",
		Help:      "Messages placed into subscriber buffers",
	},
)

var messagesDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "hub",
		Name:      "messages_dropped_total",
		Help:      "Messages dropped because the hub queue was full",
	},
)
