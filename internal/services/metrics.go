package services

import "github.com/prometheus/client_golang/prometheus"

// webhookEvents counts processed webhooks by outcome: ok, ignored or error.
var webhookEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound gateway webhooks by outcome.",
	},
	[]string{"outcome"},
)

// nonCriticalFailures counts side effects that were logged and skipped
// without failing the request (touch, publish, name refinement, thumbnail).
var nonCriticalFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_noncritical_failures_total",
		Help: "Side effects that failed without failing the request.",
	},
	[]string{"step"},
)

func init() {
	prometheus.MustRegister(webhookEvents, nonCriticalFailures)
}
