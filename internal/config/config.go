// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for arena, bonus and network settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// GAME CONFIGURATION
// =============================================================================

// GameConfig holds match loop and round timing settings.
type GameConfig struct {
	Step             time.Duration // Fixed simulation step
	MaxCatchUpFrames int           // Frames simulated at most per Advance call
	WarmupTime       time.Duration // Delay between round:new and game:start
	WarmdownTime     time.Duration // Delay between round:end and the next round
	ReadyTimeout     time.Duration // How long avatars have to signal ready
	PrintDelay       time.Duration // Delay before avatars start printing
	PerPlayerSize    float64       // Arena side for a single player
	SpawnMargin      float64       // Fraction of the arena kept clear at spawn
	SpawnAngleMargin float64       // Fraction of the arena required ahead of a spawn
	SpawnRetries     int           // Placement attempts before giving up
	Borderless       bool          // Default border mode
}

// DefaultGame returns the default game configuration.
func DefaultGame() GameConfig {
	return GameConfig{
		Step:             time.Second / 60,
		MaxCatchUpFrames: 5,
		WarmupTime:       3000 * time.Millisecond,
		WarmdownTime:     5000 * time.Millisecond,
		ReadyTimeout:     30 * time.Second,
		PrintDelay:       3000 * time.Millisecond,
		PerPlayerSize:    80,
		SpawnMargin:      0.05,
		SpawnAngleMargin: 0.3,
		SpawnRetries:     100,
		Borderless:       false,
	}
}

// GameFromEnv returns game configuration with environment variable overrides.
func GameFromEnv() GameConfig {
	cfg := DefaultGame()

	if fps := getEnvInt("GAME_FPS", 0); fps > 0 {
		cfg.Step = time.Second / time.Duration(fps)
	}
	if d := getEnvDuration("GAME_WARMUP_MS", 0); d > 0 {
		cfg.WarmupTime = d
	}
	if d := getEnvDuration("GAME_WARMDOWN_MS", 0); d > 0 {
		cfg.WarmdownTime = d
	}
	if d := getEnvDuration("GAME_READY_TIMEOUT_MS", 0); d > 0 {
		cfg.ReadyTimeout = d
	}
	if os.Getenv("GAME_BORDERLESS") == "true" {
		cfg.Borderless = true
	}

	return cfg
}

// =============================================================================
// AVATAR CONFIGURATION
// =============================================================================

// AvatarConfig holds avatar kinematics.
type AvatarConfig struct {
	Velocity         float64 // Arena units per second
	AngularVelocity  float64 // Radians per second
	Radius           float64
	StaminaCap       float64
	StaminaThreshold float64 // Minimum stamina to start a boost
	StaminaDrain     float64 // Stamina spent per StaminaTick while boosting
	StaminaRegen     float64 // Stamina regained per StaminaTick otherwise
	StaminaTick      time.Duration
	BoostFactor      float64
	BrakeFactor      float64
	TrailLatency     int // Own trail points that never kill
}

// DefaultAvatar returns the default avatar configuration.
func DefaultAvatar() AvatarConfig {
	return AvatarConfig{
		Velocity:         16,
		AngularVelocity:  2.8,
		Radius:           0.6,
		StaminaCap:       3,
		StaminaThreshold: 1,
		StaminaDrain:     0.5,
		StaminaRegen:     0.16,
		StaminaTick:      500 * time.Millisecond,
		BoostFactor:      1.3,
		BrakeFactor:      0.7,
		TrailLatency:     3,
	}
}

// =============================================================================
// BONUS CONFIGURATION
// =============================================================================

// BonusConfig holds bonus economy settings.
type BonusConfig struct {
	Cap         int           // Concurrent bonuses on the arena
	PopingTime  time.Duration // Base spawn interval
	Margin      float64       // Fraction of the arena kept clear of bonuses
	Retries     int           // Placement attempts before skipping a spawn
	Radius      float64
	DefaultRate float64 // Bonus rate when the room does not set one
}

// DefaultBonus returns the default bonus configuration.
func DefaultBonus() BonusConfig {
	return BonusConfig{
		Cap:         20,
		PopingTime:  3000 * time.Millisecond,
		Margin:      0.01,
		Retries:     64,
		Radius:      3,
		DefaultRate: 0,
	}
}

// BonusFromEnv returns bonus configuration with environment variable overrides.
func BonusFromEnv() BonusConfig {
	cfg := DefaultBonus()

	if c := getEnvInt("BONUS_CAP", 0); c > 0 {
		cfg.Cap = c
	}
	if d := getEnvDuration("BONUS_POPING_MS", 0); d > 0 {
		cfg.PopingTime = d
	}
	if r := getEnvFloat("BONUS_RATE", -2); r >= -1 && r <= 1 {
		cfg.DefaultRate = r
	}

	return cfg
}

// =============================================================================
// SYNC CONFIGURATION
// =============================================================================

// SyncConfig holds per-client event channel settings.
type SyncConfig struct {
	FlushInterval time.Duration // 0 sends every event immediately
	PingInterval  time.Duration
	InboundRate   float64 // Inbound messages per second per client
	InboundBurst  int
	SendBuffer    int    // Outbound batches buffered per connection
	Codec         string // Default codec: "json" or "msgpack"
}

// DefaultSync returns the default sync configuration.
func DefaultSync() SyncConfig {
	return SyncConfig{
		FlushInterval: 50 * time.Millisecond,
		PingInterval:  1000 * time.Millisecond,
		InboundRate:   60,
		InboundBurst:  120,
		SendBuffer:    256,
		Codec:         "json",
	}
}

// SyncFromEnv returns sync configuration with environment variable overrides.
func SyncFromEnv() SyncConfig {
	cfg := DefaultSync()

	if v, ok := os.LookupEnv("SYNC_FLUSH_MS"); ok {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.FlushInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if d := getEnvDuration("SYNC_PING_MS", 0); d > 0 {
		cfg.PingInterval = d
	}
	if r := getEnvFloat("SYNC_INBOUND_RATE", 0); r > 0 {
		cfg.InboundRate = r
	}
	if b := getEnvInt("SYNC_INBOUND_BURST", 0); b > 0 {
		cfg.InboundBurst = b
	}
	if c := os.Getenv("SYNC_CODEC"); c == "json" || c == "msgpack" {
		cfg.Codec = c
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int
	CORSOrigins []string
	DebugServer bool
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 8080,
		CORSOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
		DebugServer: true,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := getEnvList("CORS_ORIGINS"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.DebugServer = false
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection limits.
type ResourceLimits struct {
	MaxRooms          int // Rooms alive at once
	MaxPlayersPerRoom int
	MaxClients        int // WebSocket connections in total
	MaxClientsPerIP   int
	MaxNameLength     int
	HTTPRate          float64       // HTTP requests per second per IP
	HTTPBurst         int
	EmptyRoomTimeout  time.Duration // Rooms nobody joins close after this
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxRooms:          200,
		MaxPlayersPerRoom: 16,
		MaxClients:        2000,
		MaxClientsPerIP:   10,
		MaxNameLength:     25,
		HTTPRate:          10,
		HTTPBurst:         20,
		EmptyRoomTimeout:  30 * time.Second,
	}
}

// LimitsFromEnv returns resource limits with environment variable overrides.
func LimitsFromEnv() ResourceLimits {
	cfg := DefaultLimits()

	if n := getEnvInt("MAX_ROOMS", 0); n > 0 {
		cfg.MaxRooms = n
	}
	if n := getEnvInt("MAX_CLIENTS", 0); n > 0 {
		cfg.MaxClients = n
	}
	if n := getEnvInt("MAX_CLIENTS_PER_IP", 0); n > 0 {
		cfg.MaxClientsPerIP = n
	}
	if r := getEnvFloat("HTTP_RATE", 0); r > 0 {
		cfg.HTTPRate = r
	}
	if b := getEnvInt("HTTP_BURST", 0); b > 0 {
		cfg.HTTPBurst = b
	}
	if d := getEnvDuration("EMPTY_ROOM_TIMEOUT_MS", 0); d > 0 {
		cfg.EmptyRoomTimeout = d
	}

	return cfg
}

// =============================================================================
// SPATIAL CONFIGURATION
// =============================================================================

// SpatialConfig holds spatial indexing settings.
type SpatialConfig struct {
	GridUnit float64 // Target cell side in arena units
}

// DefaultSpatial returns the default spatial configuration.
func DefaultSpatial() SpatialConfig {
	return SpatialConfig{
		GridUnit: 4, // ~7 trail points per crossed cell
	}
}

// SpatialFromEnv returns spatial configuration with environment variable overrides.
func SpatialFromEnv() SpatialConfig {
	cfg := DefaultSpatial()

	if u := getEnvFloat("SPATIAL_GRID_UNIT", 0); u > 0 {
		cfg.GridUnit = u
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Game    GameConfig
	Avatar  AvatarConfig
	Bonus   BonusConfig
	Sync    SyncConfig
	Server  ServerConfig
	Limits  ResourceLimits
	Spatial SpatialConfig
}

// Default returns the complete configuration without environment overrides.
func Default() AppConfig {
	return AppConfig{
		Game:    DefaultGame(),
		Avatar:  DefaultAvatar(),
		Bonus:   DefaultBonus(),
		Sync:    DefaultSync(),
		Server:  DefaultServer(),
		Limits:  DefaultLimits(),
		Spatial: DefaultSpatial(),
	}
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Game:    GameFromEnv(),
		Avatar:  DefaultAvatar(),
		Bonus:   BonusFromEnv(),
		Sync:    SyncFromEnv(),
		Server:  ServerFromEnv(),
		Limits:  LimitsFromEnv(),
		Spatial: SpatialFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if ms := getEnvInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
