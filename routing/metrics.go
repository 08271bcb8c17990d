package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	configsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cbrouting_configs_applied_total",
		Help: "Number of bucket configs accepted and installed by the router.",
	})

	configsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cbrouting_configs_rejected_total",
		Help: "Number of bucket configs rejected for not being newer than the installed one.",
	})
)
