package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var alertsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Margin alerts successfully delivered, by channel",
	},
	[]string{"channel"},
)

var alertSendFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "alerts",
		Name:      "send_failures_total",
		Help:      "Margin alert deliveries that failed after retries, by channel",
	},
	[]string{"channel"},
)
