package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/app"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
	chiTransport "github.com/kailas-cloud/ragvoice/internal/transport/chi"
	"github.com/kailas-cloud/ragvoice/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()
			return serve(e)
		},
	}
}

func serve(e *env) error {
	cfg, logger := e.cfg, e.logger

	logger.Info("Starting ragvoice API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", e.name),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("llm_provider", cfg.OpenAI.Provider),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("tts_provider", cfg.Speech.TTSProvider),
	)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := app.Build(ctx, cfg, logger, app.Overrides{})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	if cfg.Ingest.RescanOnStart {
		go func() {
			if _, err := a.Ingest.Rescan(ctx); err != nil {
				logger.Error("Startup rescan failed", zap.Error(err))
			}
		}()
	}
	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
		defer a.Scheduler.Stop()
	}

	server := chiTransport.NewServer(a.Chat, a.Speech, a.Ingest, a.Health, chiTransport.Limits{
		MaxAudioBytes:  int64(cfg.Speech.MaxAudioMB) << 20,
		MaxUploadBytes: int64(cfg.Ingest.MaxUploadMB) << 20,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Embedding-Tokens"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Received shutdown signal")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
