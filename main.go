package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/callbridge/config"
	"github.com/room4-2/callbridge/logging"
	"github.com/room4-2/callbridge/server"
	"github.com/room4-2/callbridge/session"
	"github.com/room4-2/callbridge/tools"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.New(nil, "info").Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(nil, cfg.LogLevel)

	// Tool surface exposed to the voice agent
	registry := tools.NewRegistry()
	tools.RegisterHelpdesk(registry, tools.NewDirectory())
	tools.RegisterPolicySearch(registry)

	// Create session manager
	sessionManager, err := session.NewManager(cfg, registry, log.Sub("session"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session manager")
	}

	// Start cleanup routine
	ctx, cancel := context.WithCancel(context.Background())
	go sessionManager.StartCleanupRoutine(ctx)

	srv := server.New(cfg, sessionManager, nil, log.Sub("server"))

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}
