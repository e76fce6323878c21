package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/duckask/duckask/internal/api"
	"github.com/duckask/duckask/internal/api/uistatic"
	"github.com/duckask/duckask/internal/config"
	"github.com/duckask/duckask/internal/dataset"
	"github.com/duckask/duckask/internal/nl2sql"
	"github.com/duckask/duckask/internal/observability"
	duckdbengine "github.com/duckask/duckask/internal/query/duckdb"
	"github.com/duckask/duckask/internal/session"
)

func main() {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("duckask-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	translator, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		Model:          cfg.AI.Model,
		Temperature:    cfg.AI.Temperature,
		Timeout:        cfg.AI.Timeout,
		RetryAttempts:  cfg.AI.RetryAttempts,
		RetryBaseDelay: cfg.AI.RetryBaseDelay,
		RetryMaxDelay:  cfg.AI.RetryMaxDelay,
	})
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := session.NewManager(session.Config{
		IdleTTL:      cfg.Session.IdleTTL,
		HistoryLimit: cfg.Session.HistoryLimit,
	})
	sweepDone := make(chan struct{})
	go sessions.Run(time.Minute, sweepDone)

	deps := api.Dependencies{
		Logger:     logger,
		Sessions:   sessions,
		Translator: translator,
		Engine:     duckdbengine.NewEngine(cfg.Query.Timeout),
		DatasetOptions: dataset.Options{
			MaxBytes:   cfg.Dataset.MaxUploadBytes,
			SampleRows: cfg.Dataset.SampleRows,
			TempDir:    cfg.Dataset.TempDir,
		},
		QueryRowLimit:     cfg.Query.RowLimit,
		UI:                uistatic.Handler(),
		Readiness:         duckdbengine.Ping,
		DependencyTimeout: time.Second,
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
	close(sweepDone)
	sessions.Shutdown()
}
