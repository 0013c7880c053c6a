// Package metrics registers the runtime's Prometheus collectors.
// Collectors are package-level and registered once via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts decision ticks per agent.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autarch_agent_ticks_total",
		Help: "Total number of decision ticks per agent",
	}, []string{"agent"})

	// TickDuration observes tick wall time per agent.
	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autarch_agent_tick_duration_seconds",
		Help:    "Duration of decision ticks per agent",
		Buckets: prometheus.DefBuckets,
	}, []string{"agent"})

	// TickErrorsTotal counts failed ticks per agent.
	TickErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autarch_agent_tick_errors_total",
		Help: "Total number of failed ticks per agent",
	}, []string{"agent"})

	// AgentRunning reports scheduler liveness per agent (1=running).
	AgentRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autarch_agent_running",
		Help: "Whether the agent scheduler is running (1=running, 0=stopped)",
	}, []string{"agent"})

	// DecisionsTotal counts committed decisions per agent and action.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autarch_agent_decisions_total",
		Help: "Total decisions per agent and action",
	}, []string{"agent", "action"})

	// RPCFailuresTotal counts RPC failures by error class.
	RPCFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autarch_rpc_failures_total",
		Help: "Total RPC failures by error class",
	}, []string{"class"})

	// RPCMode reports the connection mode (0=normal, 1=degraded,
	// 2=simulation).
	RPCMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autarch_rpc_connection_mode",
		Help: "RPC connection mode (0=normal, 1=degraded, 2=simulation)",
	})

	// SSEClients reports currently connected event-stream clients.
	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autarch_sse_clients",
		Help: "Currently connected SSE clients",
	})

	// SSEBroadcastsTotal counts broadcast events by event name.
	SSEBroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autarch_sse_broadcasts_total",
		Help: "Total SSE broadcasts by event name",
	}, []string{"event"})
)
