package api

import (
	"context"

	"trail-arena/internal/config"
	"trail-arena/internal/game"
	"trail-arena/internal/room"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// LobbyInterface defines the room directory methods used by the API.
// This interface enables mocking for tests without running rooms.
type LobbyInterface interface {
	// Rooms lists every open room
	Rooms(ctx context.Context) []room.Info
	// RoomInfo describes one room
	RoomInfo(ctx context.Context, name string) (room.Info, error)
	// RoomSnapshot copies the running match of a room
	RoomSnapshot(ctx context.Context, name string, withTrails bool) (game.Snapshot, bool, error)
	RoomCount() int
	ClientCount() int
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Lobby: dir,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Lobby is the room directory (required)
	Lobby LobbyInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, the default resource limits apply.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, localhost origins are allowed.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	lobby LobbyInterface
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// The function has no side effects apart from the rate limiter's cleanup
// goroutine when no RateLimiter is passed in, so it is safe to use with
// httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := RateLimitFromLimits(config.DefaultLimits())
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	h := &routerHandlers{lobby: cfg.Lobby}

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", h.handleListRooms)
		r.Get("/rooms/{name}", h.handleGetRoom)
		r.Get("/rooms/{name}/arena.png", h.handleArenaPNG)
		r.Get("/bonuses", h.handleListBonuses)
	})

	return r
}
