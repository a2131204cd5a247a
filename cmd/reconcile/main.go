package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/punchamoorthee/ledgerbank/internal/config"
	"github.com/punchamoorthee/ledgerbank/internal/service"
	"github.com/punchamoorthee/ledgerbank/internal/store"
)

// Exit codes: 0 consistent, 1 the audit could not run, 2 violations found.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	if cfg.StoreDriver != config.DriverPostgres {
		slog.Error("Reconcile requires STORE_DRIVER=postgres")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := store.NewPostgres(ctx, cfg.DBSource, cfg.DBMaxConns)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		return 1
	}
	defer pg.Close()

	report, err := service.Audit(ctx, pg)
	if err != nil {
		slog.Error("Audit failed to run", "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)

	if err := report.Err(); err != nil {
		slog.Error("Ledger is inconsistent", "error", err)
		return 2
	}
	slog.Info("Ledger is consistent")
	return 0
}
