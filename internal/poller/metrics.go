package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ticks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "poller",
		Name:      "ticks_total",
		Help:      "Completed polling ticks, by cadence",
	},
	[]string{"cadence"},
)

var tickPanics = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "poller",
		Name:      "tick_panics_total",
		Help:      "Polling ticks that panicked and were recovered",
	},
)

var fieldChanges = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "poller",
		Name:      "field_changes_total",
		Help:      "Detected changes per account and field",
	},
	[]string{"account", "field"},
)

var persistDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "poller",
		Name:      "persist_dropped_total",
		Help:      "Persistence jobs dropped because the queue was full",
	},
)

var persistErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "poller",
		Name:      "persist_errors_total",
		Help:      "Persistence jobs that failed, by kind",
	},
	[]string{"kind"},
)
