package archiver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var archiveRuns = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "archiver",
		Name:      "runs_total",
		Help:      "Completed archive passes",
	},
)

var archiveErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "archiver",
		Name:      "errors_total",
		Help:      "Archive failures, by account",
	},
	[]string{"account"},
)
