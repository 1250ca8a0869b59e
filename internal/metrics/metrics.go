// Package metrics holds the prometheus collectors shared by the match loop,
// the sync channels and the HTTP layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality (no per-room or per-client labels)
var (
	// Match loop metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent advancing a match by one tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_frames_dropped_total",
		Help: "Simulation backlog dropped by the catch-up cap",
	})

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_rooms_active",
		Help: "Rooms currently open",
	})

	activeMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_matches_active",
		Help: "Matches currently running",
	})

	roundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_rounds_total",
		Help: "Rounds played",
	})

	deathsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_deaths_total",
		Help: "Avatar deaths",
	}, []string{"cause"}) // Bounded: "wall", "trail", "self", "leave"

	bonusesSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_bonuses_spawned_total",
		Help: "Bonuses popped on an arena",
	})

	bonusesCaught = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_bonuses_caught_total",
		Help: "Bonuses picked up",
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_render_duration_seconds",
		Help:    "Time spent rendering an arena preview",
		Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.25},
	})

	// Sync channel metrics
	eventsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_events_sent_total",
		Help: "Events written to clients",
	})

	batchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_batches_flushed_total",
		Help: "Batches written to clients",
	})

	inboundDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_inbound_dropped_total",
		Help: "Inbound messages dropped",
	}, []string{"reason"}) // Bounded: "rate_limit", "malformed", "unknown_callback"

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is path pattern, not full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "websocket_latency_seconds",
		Help:    "Ping round trip to clients",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// RecordTick records tick timing
func RecordTick(duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
}

// RecordRender records preview render timing
func RecordRender(duration time.Duration) {
	renderDuration.Observe(duration.Seconds())
}

// RecordFramesDropped counts a dropped simulation backlog
func RecordFramesDropped() {
	framesDropped.Inc()
}

// UpdateRooms updates the open room gauge
func UpdateRooms(count int) {
	activeRooms.Set(float64(count))
}

// MatchStarted increments the running match gauge
func MatchStarted() {
	activeMatches.Inc()
}

// MatchFinished decrements the running match gauge
func MatchFinished() {
	activeMatches.Dec()
}

// RecordRound counts a finished round
func RecordRound() {
	roundsTotal.Inc()
}

// RecordDeath counts a death. cause must be one of: "wall", "trail", "self", "leave"
func RecordDeath(cause string) {
	deathsTotal.WithLabelValues(cause).Inc()
}

// RecordBonusSpawned counts a popped bonus
func RecordBonusSpawned() {
	bonusesSpawned.Inc()
}

// RecordBonusCaught counts a caught bonus
func RecordBonusCaught() {
	bonusesCaught.Inc()
}

// RecordFlush records one batch of n events written to a client
func RecordFlush(n int) {
	batchesFlushed.Inc()
	eventsSent.Add(float64(n))
}

// RecordInboundDropped counts a dropped inbound message
// reason must be one of: "rate_limit", "malformed", "unknown_callback"
func RecordInboundDropped(reason string) {
	inboundDropped.WithLabelValues(reason).Inc()
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// RecordLatency records a ping round trip
func RecordLatency(rtt time.Duration) {
	wsLatency.Observe(rtt.Seconds())
}
