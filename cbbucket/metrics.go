package cbbucket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ambiguousHostMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cbrouting_ambiguous_host_matches_total",
		Help: "Number of partition host descriptors that matched more than one node reference.",
	})

	configParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cbrouting_config_parse_failures_total",
		Help: "Number of bucket config documents that failed to parse into a topology model.",
	})
)
