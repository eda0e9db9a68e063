package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slackrag/internal/config"
	"slackrag/internal/document"
	"slackrag/internal/logging"
	"slackrag/internal/middleware"
	"slackrag/internal/services"
	"slackrag/internal/slack"
	"slackrag/internal/storage"
	"slackrag/internal/syncer"
)

func main() {
	logging.SetupLogger()

	slog.Info("Starting slackrag sync service", slog.String("version", "1.0.0"))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := connectStorage(cfg)
	defer store.Close()

	client := slack.NewClient(cfg.SlackBotToken)
	if err := client.CheckAuth(ctx); err != nil {
		slog.Error("Slack authentication failed", "error", err)
		os.Exit(1)
	}

	fetcher := slack.NewFetcher(client, slack.BackoffPolicy{
		Initial:     cfg.BackoffInitial,
		Max:         cfg.BackoffMax,
		MaxAttempts: cfg.FetchMaxAttempts,
	})
	builder := document.NewBuilder(cfg.ChunkMaxChars)
	embedder := services.NewEmbeddingService(cfg.OpenAIAPIKey)

	orchestrator := syncer.New(client, fetcher, builder, embedder, store, store, syncer.Options{
		Channels:  cfg.Channels,
		Interval:  cfg.SyncInterval,
		RunOnce:   cfg.RunOnce,
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
	})

	if cfg.RunOnce {
		if err := orchestrator.Run(ctx); err != nil {
			slog.Error("Sync failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Background sync loop; credential failures stop the process.
	syncDone := make(chan error, 1)
	go func() {
		syncDone <- orchestrator.Run(ctx)
	}()

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.MetricsMiddleware)

	statusRouter := router.PathPrefix("/status").Subrouter()
	statusRouter.Use(middleware.StatusRateLimitMiddleware())
	statusRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		summary := orchestrator.LastSummary()
		if summary == nil {
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"status": "no cycle completed yet"})
			return
		}
		json.NewEncoder(w).Encode(summary)
	}).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := store.Count(r.Context()); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Admin server starting", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Admin server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("Shutting down...")
	case err := <-syncDone:
		if err != nil && err != context.Canceled {
			slog.Error("Sync loop stopped", "error", err)
		}
	}

	// Let the in-flight channel finish its stage or abort cleanly; no
	// cursor is ever committed for a partially-delivered batch set.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Exited gracefully")
}

// connectStorage retries a few times so the service survives a database
// that comes up slightly after it does.
func connectStorage(cfg *config.Config) *storage.PostgresStore {
	for attempt := 1; ; attempt++ {
		store, err := storage.NewPostgresStore(cfg.DatabaseURL, cfg.EmbeddingDimensions)
		if err == nil {
			return store
		}
		if attempt >= 5 {
			slog.Error("Failed to connect to database", "error", err, "attempts", attempt)
			os.Exit(1)
		}
		slog.Error("Failed to connect to database, retrying in 10s", "error", err, "attempt", attempt)
		time.Sleep(10 * time.Second)
	}
}
