package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sessionkeeper/config"
	"sessionkeeper/internal/api"
	"sessionkeeper/internal/api/handlers"
	"sessionkeeper/internal/api/middleware"
	"sessionkeeper/internal/logging"
	"syscall"
	"time"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "authstub-config.json"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	flag.Parse()

	// Load configuration
	var cfg *config.StubConfig
	var err error

	if *useEnv {
		cfg, err = config.LoadStubConfigFromEnv()
	} else {
		cfg, err = config.LoadStubConfig(*configPath)
	}

	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})

	sessions := middleware.NewSessionManager(time.Duration(cfg.Auth.SessionTTL), time.Duration(cfg.Auth.CleanupInterval))
	defer sessions.Close()

	router := api.NewRouter(api.RouterConfig{
		Users:         handlers.NewUserStore(cfg.Auth.BcryptCost),
		Sessions:      sessions,
		Tokens:        middleware.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), time.Duration(cfg.Auth.AccessTokenTTL)),
		SecureCookies: cfg.Auth.SecureCookies,
		Logger:        logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting auth server", "addr", addr,
			"access_token_ttl", time.Duration(cfg.Auth.AccessTokenTTL),
			"session_ttl", time.Duration(cfg.Auth.SessionTTL))
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Starting graceful shutdown", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}
