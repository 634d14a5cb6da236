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

	"github.com/gorilla/mux"

	"github.com/hook0/webhooks-core/internal/api"
	"github.com/hook0/webhooks-core/internal/config"
	"github.com/hook0/webhooks-core/internal/observability"
	"github.com/hook0/webhooks-core/internal/relay"
)

func main() {
	cfg := config.Get()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	relayServer, err := relay.Build(*cfg, metrics)
	if err != nil {
		log.Fatalf("relay: %v", err)
	}

	router := mux.NewRouter()
	router.Use(api.LoggingMiddleware)
	relayServer.Register(router)

	go relayServer.RunBackgroundLoops(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Relay.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.Relay.ResponseDeadlineSec+10) * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("received shutdown signal, shutting down relay server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("relay server shutdown error", "error", err)
		}
	}()

	slog.Info("relay tunnel server starting", "port", cfg.Relay.Port, "base_url", cfg.Relay.PublicBaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("relay server failed to start: %v", err)
	}
	slog.Info("relay server stopped")
}
