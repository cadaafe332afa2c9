// Package metrics provides Prometheus metrics for the panel backend.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Router API metrics.
	RouterCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "router",
		Name:      "commands_total",
		Help:      "RouterOS API commands issued, by command and outcome.",
	}, []string{"command", "outcome"}) // outcome: "ok" or "error"
	RouterCommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ispanel",
		Subsystem: "router",
		Name:      "command_duration_seconds",
		Help:      "RouterOS API command round-trip latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"command"})
	RouterConnectErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "router",
		Name:      "connect_errors_total",
		Help:      "Failed connect or login attempts.",
	})

	// Reconciliation metrics.
	SyncPassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Subscriber sync passes, by result.",
	}, []string{"result"}) // "ok", "router_unavailable", "error"
	SyncWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "sync",
		Name:      "writes_total",
		Help:      "Store writes performed by sync, by kind.",
	}, []string{"kind"}) // "created" or "updated"

	// Enforcement metrics.
	EnforcementPassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "quota",
		Name:      "passes_total",
		Help:      "Quota enforcement passes run.",
	})
	EnforcementDisablesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "quota",
		Name:      "disables_total",
		Help:      "Subscribers disabled by the enforcer, by reason.",
	}, []string{"reason"})
	EnforcementRouterFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "quota",
		Name:      "router_failures_total",
		Help:      "Best-effort router actions that failed during enforcement.",
	})

	// Usage accounting.
	AccountedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "usage",
		Name:      "accounted_bytes_total",
		Help:      "Bytes added to subscriber usage totals.",
	})
	CounterResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ispanel",
		Subsystem: "usage",
		Name:      "counter_resets_total",
		Help:      "Live interface counter resets observed.",
	})
)

func init() {
	prometheus.MustRegister(
		RouterCommandsTotal,
		RouterCommandDuration,
		RouterConnectErrors,
		SyncPassesTotal,
		SyncWritesTotal,
		EnforcementPassesTotal,
		EnforcementDisablesTotal,
		EnforcementRouterFailures,
		AccountedBytesTotal,
		CounterResetsTotal,
	)
}
