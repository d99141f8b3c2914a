package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "stream",
		Name:      "reconnects_total",
		Help:      "Order book stream reconnect attempts",
	},
)

var messagesReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "stream",
		Name:      "messages_received_total",
		Help:      "Depth messages received, by market",
	},
	[]string{"market"},
)

var connState = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "broadcaster",
		Subsystem: "stream",
		Name:      "connection_state",
		Help:      "Current connection state (0=disconnected, 1=connecting, 2=subscribed)",
	},
)
