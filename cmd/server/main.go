package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trail-arena/internal/api"
	"trail-arena/internal/config"
	"trail-arena/internal/room"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🐍 ================================")
	log.Println("🐍  TRAIL ARENA - GAME SERVER")
	log.Println("🐍 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()

	log.Printf("⏱️ Step: %v (max %d catch-up frames)", appConfig.Game.Step, appConfig.Game.MaxCatchUpFrames)
	log.Printf("📦 Sync: codec=%s flush=%v ping=%v", appConfig.Sync.Codec, appConfig.Sync.FlushInterval, appConfig.Sync.PingInterval)
	log.Printf("🛡️ Limits: %d rooms, %d players/room, %d clients (%d per IP)",
		appConfig.Limits.MaxRooms, appConfig.Limits.MaxPlayersPerRoom,
		appConfig.Limits.MaxClients, appConfig.Limits.MaxClientsPerIP)

	dir := room.NewDirectory(appConfig)
	server := api.NewServer(dir, appConfig)
	debug := api.StartDebugServer(api.ObservabilityFromEnv(appConfig.Server.DebugServer))

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	dir.Shutdown()
	if debug != nil {
		debug.Shutdown(ctx)
	}
	log.Println("👋 Goodbye!")
}
