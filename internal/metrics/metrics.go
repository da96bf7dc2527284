package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for protocol traffic and correlation health
var (
	OutboundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fisbap_outbound_requests_total",
			Help: "Outbound protocol requests by action",
		},
		[]string{"action"},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fisbap_callbacks_total",
			Help: "Inbound callbacks by action and decision",
		},
		[]string{"action", "decision"},
	)

	CorrelationMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fisbap_correlation_misses_total",
			Help: "Follow-up requests that found no prior-stage record",
		},
		[]string{"stage"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fisbap_dispatch_duration_seconds",
			Help:    "Duration of outbound dispatch including the network call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	FlowCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fisbap_flow_completions_total",
			Help: "End-to-end flow runs by outcome",
		},
		[]string{"outcome"},
	)
)

// Register registers all metrics with the default registry
func Register() {
	prometheus.MustRegister(
		OutboundTotal,
		CallbacksTotal,
		CorrelationMissesTotal,
		DispatchDuration,
		FlowCompletionsTotal,
	)
}
