/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counts the engine's externally visible actions so operators can chart
  join/contribution/abandon volume. Exposed on /metrics via promhttp
  (see server.go).
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	joinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "challenge_joins_total",
		Help: "Number of successful challenge joins.",
	})

	contributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_contributions_total",
		Help: "Number of recorded contribution events by kind.",
	}, []string{"kind"})

	abandonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_abandons_total",
		Help: "Number of abandoned participations by category.",
	}, []string{"category"})
)
