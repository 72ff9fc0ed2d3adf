// Package metrics defines the Prometheus collectors for the voting core.
// All collectors are registered via promauto at package init and exposed on
// the server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Vote path metrics
var (
	// VotesCastTotal tracks cast attempts by outcome
	// (success, duplicate, daily_limit, show_limit, rate_limited, not_found, error).
	VotesCastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_cast_total",
			Help: "Total vote cast attempts by outcome",
		},
		[]string{"outcome"},
	)

	// VotesRemovedTotal tracks removal attempts by outcome.
	VotesRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_removed_total",
			Help: "Total vote removal attempts by outcome",
		},
		[]string{"outcome"},
	)

	// VoteCastDuration tracks end-to-end cast latency including the
	// transaction but excluding post-commit side effects.
	VoteCastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vote_cast_duration_seconds",
			Help:    "Vote cast duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// SideEffectFailuresTotal tracks swallowed post-commit failures
	// (cache_invalidate, broadcast).
	SideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_side_effect_failures_total",
			Help: "Post-commit side effect failures by effect",
		},
		[]string{"effect"},
	)
)

// Aggregate cache metrics
var (
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "show_song_cache_hits_total",
			Help: "Show song cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "show_song_cache_misses_total",
			Help: "Show song cache misses",
		},
	)

	CacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "show_song_cache_invalidations_total",
			Help: "Show song cache invalidations",
		},
	)

	// CacheFallbacksTotal counts reads served directly from the store
	// because Redis was unavailable.
	CacheFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "show_song_cache_fallbacks_total",
			Help: "Cache reads that fell back to the durable store",
		},
	)
)

// Redis operation metrics (collected by the client hook)
var (
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation, consuming surface, and status",
		},
		[]string{"operation", "surface", "status"},
	)

	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds by operation and consuming surface",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "surface"},
	)

	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerState tracks the Redis breaker (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)

// Broadcast fanout metrics
var (
	BroadcasterActiveShows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcaster_active_shows",
			Help: "Number of shows with at least one local subscriber",
		},
	)

	BroadcasterConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcaster_connected_clients_total",
			Help: "Total connected websocket clients across all shows",
		},
	)

	BroadcasterSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_slow_clients_evicted_total",
			Help: "Websocket clients evicted because their send buffer was full",
		},
	)

	BroadcasterMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_messages_sent_total",
			Help: "Vote update messages enqueued to local subscribers",
		},
	)

	BroadcasterPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_panics_total",
			Help: "Total broadcaster panic recoveries",
		},
	)

	BroadcasterStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_stop_timeouts_total",
			Help: "Broadcaster stops that exceeded timeout",
		},
	)

	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Websocket ping write failures",
		},
	)

	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Websocket connections rejected by limit reason",
		},
		[]string{"reason"},
	)
)

// Rate limiter metrics
var (
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_rate_limited_total",
			Help: "Vote attempts rejected by the short-window rate limiter",
		},
	)

	RateLimiterTrackedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vote_rate_limiter_tracked_users",
			Help: "Users currently tracked by the in-memory rate limiter",
		},
	)
)

// Trending scorer metrics
var (
	TrendingRecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trending_recomputes_total",
			Help: "Trending snapshot recomputations by status",
		},
		[]string{"status"},
	)

	TrendingRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trending_recompute_duration_seconds",
			Help:    "Trending recompute duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	TrendingRankedShows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trending_ranked_shows",
			Help: "Shows in the latest trending snapshot",
		},
	)
)
