package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Coordinator Metrics
var (
	// CoordinatorActiveSessions tracks the number of registered push sessions
	CoordinatorActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coordinator_active_sessions",
			Help: "Number of sessions currently registered with the coordinator",
		},
	)

	// CoordinatorBroadcastsTotal tracks broadcasts by entity
	CoordinatorBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_broadcasts_total",
			Help: "Total broadcasts processed by the coordinator, by entity",
		},
		[]string{"entity"},
	)

	// CoordinatorDeliveriesTotal tracks successful per-session frame deliveries
	CoordinatorDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_deliveries_total",
			Help: "Total frames delivered to session transports",
		},
	)

	// CoordinatorDeliveryFailuresTotal tracks sessions evicted on failed writes
	CoordinatorDeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_delivery_failures_total",
			Help: "Total sessions removed because a transport write failed",
		},
	)

	// CoordinatorBroadcastDuration tracks fan-out latency per broadcast
	CoordinatorBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coordinator_broadcast_duration_seconds",
			Help:    "Duration of a single broadcast fan-out in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// CoordinatorCommandChannelDepth tracks pending commands in the actor mailbox
	CoordinatorCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coordinator_command_channel_depth",
			Help: "Number of commands waiting in the coordinator command channel",
		},
	)

	// CoordinatorPanicsTotal tracks recovered panics in the coordinator loop
	CoordinatorPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_panics_total",
			Help: "Total panics recovered in the coordinator goroutine",
		},
	)

	// CoordinatorStopTimeoutsTotal tracks stops that exceeded the grace period
	CoordinatorStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_stop_timeouts_total",
			Help: "Total coordinator stops that exceeded the shutdown grace period",
		},
	)
)

// Rate Limiter Metrics
var (
	// RateLimitChecksTotal tracks rate limit decisions by outcome
	RateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_checks_total",
			Help: "Total rate limit checks by outcome (allowed/denied/fail_open)",
		},
		[]string{"outcome"},
	)

	// RateLimitRecordsExpired tracks records reclaimed by periodic cleanup
	RateLimitRecordsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_records_expired_total",
			Help: "Total expired rate limit records deleted by cleanup",
		},
	)
)

// Cleanup Metrics
var (
	// CleanupRunsTotal tracks periodic cleanup sweeps
	CleanupRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cleanup_runs_total",
			Help: "Total periodic cleanup sweeps executed",
		},
	)

	// CleanupReapedSessionsTotal tracks sessions reclaimed by the ping probe
	CleanupReapedSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cleanup_reaped_sessions_total",
			Help: "Total half-closed sessions removed by the cleanup ping probe",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks currently open WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of open WebSocket connections",
		},
	)

	// WebSocketConnectionsTotal tracks accepted WebSocket connections
	WebSocketConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connections accepted",
		},
	)

	// WebSocketPingFailures tracks failed ping writes
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping writes that failed",
		},
	)

	// WebSocketMessageSendDuration tracks frame write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)
)

// SSE Bridge Metrics
var (
	// SSEBridgesCurrent tracks currently open SSE bridges
	SSEBridgesCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_bridges_current",
			Help: "Current number of open SSE bridge connections",
		},
	)

	// SSEBridgesTotal tracks opened SSE bridges
	SSEBridgesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_bridges_total",
			Help: "Total SSE bridge connections opened",
		},
	)

	// SSEBridgeLifetimeExpiries tracks bridges closed by the max-lifetime timer
	SSEBridgeLifetimeExpiries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_bridge_lifetime_expiries_total",
			Help: "Total SSE bridges closed because the max connection lifetime elapsed",
		},
	)

	// SSEFramesForwarded tracks envelopes relayed to SSE clients
	SSEFramesForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_frames_forwarded_total",
			Help: "Total broadcast frames relayed to SSE clients",
		},
	)
)

// Connection Limit Metrics
var (
	// ConnectionsRejectedTotal tracks connections rejected by admission control
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "Total connections rejected by limiters, by reason",
		},
		[]string{"reason"},
	)
)

// Redis Metrics
var (
	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
