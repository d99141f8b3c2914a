package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики gateway.
//
// fetchDuration вместе с fetchFailures позволяет увидеть деградацию
// конкретного аккаунта (обычно умирает его прокси) раньше, чем это
// станет заметно по устареванию кэша.

var fetchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "broadcaster",
		Subsystem: "gateway",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of exchange API requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
	},
	[]string{"account", "path"},
)

var fetchFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "broadcaster",
		Subsystem: "gateway",
		Name:      "fetch_failures_total",
		Help:      "Exchange API requests that ended in a transport error or non-2xx status",
	},
	[]string{"account", "path"},
)
