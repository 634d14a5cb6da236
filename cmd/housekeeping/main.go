package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hook0/webhooks-core/internal/config"
	"github.com/hook0/webhooks-core/internal/housekeeping"
	"github.com/hook0/webhooks-core/internal/storage"
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

	runner := housekeeping.NewRunner(store, cfg.Housekeep)

	slog.Info("housekeeping runner started", "dry_run", cfg.Housekeep.DryRun, "period_sec", cfg.Housekeep.PeriodSec)
	runner.Run(ctx)
	slog.Info("housekeeping runner stopped")
}
