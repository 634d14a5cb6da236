package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hook0/webhooks-core/internal/auth"
	"github.com/hook0/webhooks-core/internal/config"
	"github.com/hook0/webhooks-core/internal/cryptosecret"
	"github.com/hook0/webhooks-core/internal/infra"
	"github.com/hook0/webhooks-core/internal/objectstore"
	"github.com/hook0/webhooks-core/internal/observability"
	"github.com/hook0/webhooks-core/internal/queue"
	"github.com/hook0/webhooks-core/internal/secrets"
	"github.com/hook0/webhooks-core/internal/storage"
	"github.com/hook0/webhooks-core/internal/worker"
	"github.com/hook0/webhooks-core/pb"
)

func main() {
	cfg := config.Get()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	var box *cryptosecret.Box
	if cfg.Security.EncryptionKeyB64 != "" {
		box, err = cryptosecret.NewBox(cfg.Security.EncryptionKeyB64)
		if err != nil {
			log.Fatalf("cryptosecret: %v", err)
		}
	}
	secretStore := secrets.NewStore(store.DB(), box)

	tokenCache := auth.NewDBTokenCache(store)
	if cfg.Redis.Enabled {
		adapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("redis connection failed, OAuth token cache stays DB-only", "error", err)
		} else {
			defer adapter.Close()
			tokenCache = auth.NewRedisFrontedTokenCache(adapter, tokenCache)
		}
	}

	objStore, err := objectstore.Build(ctx, cfg.ObjectStore)
	if err != nil {
		log.Fatalf("objectstore: %v", err)
	}

	metrics := observability.NewMetrics()

	dispatcher := worker.NewDispatcher(store, secretStore, tokenCache, objStore, metrics, cfg.Delivery)

	publisher, consumer, err := queue.Build(ctx, cfg.Queue, cfg.Queue.SubscriptionID, cfg.Queue.WorkerIntakeURL)
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	defer publisher.Close()

	var intakeServer *http.Server
	if consumer == nil {
		// Cloud Tasks-only mode: there is no pull subscription, so the
		// worker exposes the HTTP endpoint Cloud Tasks posts tasks to
		// directly, per internal/queue/cloudtasks.go's Publish.
		intakeServer = startIntakeServer(cfg.Queue.WorkerIntakeURL, dispatcher)
	} else {
		go func() {
			if err := dispatcher.Run(ctx, consumer); err != nil {
				slog.Error("dispatcher stopped", "error", err)
			}
		}()
	}

	slog.Info("delivery worker started")
	<-ctx.Done()
	slog.Info("shutting down delivery worker")

	if intakeServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = intakeServer.Shutdown(shutdownCtx)
	}
}

// startIntakeServer listens on the port named by intakeURL and decodes
// each POSTed body as a DispatchMessage, dispatching it synchronously. A
// body that cannot be read or decoded is answered 400; a decoded message
// is answered 200 whatever the dispatch outcome, since HandleMessage
// reports no error and dispatch records failures and retries itself.
func startIntakeServer(intakeURL string, dispatcher *worker.Dispatcher) *http.Server {
	addr := ":8081"
	path := "/intake"
	if u, err := url.Parse(intakeURL); err == nil {
		if u.Port() != "" {
			addr = ":" + u.Port()
		}
		if u.Path != "" {
			path = u.Path
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		msg, err := pb.DecodeDispatchMessage(body)
		if err != nil {
			http.Error(w, "malformed dispatch message", http.StatusBadRequest)
			return
		}
		dispatcher.HandleMessage(r.Context(), msg)
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("worker intake server starting", "addr", addr, "path", path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker intake server stopped", "error", err)
		}
	}()
	return server
}
