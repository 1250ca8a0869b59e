package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/room"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with WebSocket support.
type Server struct {
	dir         *room.Directory
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server for a room directory.
//
// No listener is opened until Start is called, so tests can use Router()
// with httptest directly.
func NewServer(dir *room.Directory, cfg config.AppConfig) *Server {
	s := &Server{
		dir:         dir,
		wsHub:       NewWebSocketHub(dir, cfg),
		rateLimiter: NewIPRateLimiter(RateLimitFromLimits(cfg.Limits)),
	}

	s.router = NewRouter(RouterConfig{
		Lobby:       dir,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// WebSocket routes need the hub instance
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := s.httpServer.Addr
	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🔌 WebSocket: ws://localhost%s/ws", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests and releases background workers.
// Open sockets are closed by the directory's own Shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
