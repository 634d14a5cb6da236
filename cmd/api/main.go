package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hook0/webhooks-core/internal/api"
	"github.com/hook0/webhooks-core/internal/config"
	"github.com/hook0/webhooks-core/internal/ingestion"
	"github.com/hook0/webhooks-core/internal/observability"
	"github.com/hook0/webhooks-core/internal/queue"
	"github.com/hook0/webhooks-core/internal/storage"
)

func main() {
	cfg := config.Get()

	store, err := storage.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	publisher, _, err := queue.Build(ctx, cfg.Queue, cfg.Queue.SubscriptionID, cfg.Queue.WorkerIntakeURL)
	cancel()
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	defer publisher.Close()

	_ = observability.NewMetrics() // registers ingestion-relevant series against the default registry

	ingester := ingestion.New(store, publisher, cfg.API.AllowedContentTypes)
	handler := ingestion.NewHandler(ingester, store)

	router := api.NewRouter(cfg.API)
	handler.Register(router)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	if cfg.Observ.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("metrics server starting", "addr", cfg.Observ.MetricsAddr)
			if err := http.ListenAndServe(cfg.Observ.MetricsAddr, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.API.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.API.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.API.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gracefully")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.API.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ingestion API starting", "port", cfg.API.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}
	slog.Info("server stopped")
}
