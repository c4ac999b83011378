package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"claimsqa/internal/app"
	"claimsqa/internal/config"
	"claimsqa/internal/handler"
	"claimsqa/internal/observability"
	"claimsqa/internal/router"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	observability.InitLogger(cfg.Telemetry.ServiceName, cfg.Log.Format, cfg.Log.Level)
	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	shutdownTelemetry, err := observability.Setup(ctx, cfg.Telemetry.ServiceName, version, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	metrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	a, err := app.New(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("closing document store failed")
		}
	}()

	claimsH := handler.NewClaimsHandler(a.Service, version, cfg.Pipeline.MaxFileSizeMB<<20)
	healthH := handler.NewHealthHandler(a.Store)
	r := router.Setup(claimsH, healthH, metrics, cfg.CORS.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", cfg.Server.Port).
			Str("store", cfg.Store.Backend).
			Str("storage", cfg.Storage.Backend).
			Str("version", version).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
