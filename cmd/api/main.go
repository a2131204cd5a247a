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

	"github.com/punchamoorthee/ledgerbank/internal/analytics"
	"github.com/punchamoorthee/ledgerbank/internal/api"
	"github.com/punchamoorthee/ledgerbank/internal/auth"
	"github.com/punchamoorthee/ledgerbank/internal/config"
	"github.com/punchamoorthee/ledgerbank/internal/notify"
	"github.com/punchamoorthee/ledgerbank/internal/service"
	"github.com/punchamoorthee/ledgerbank/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx := context.Background()
	ledgerStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Unable to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer ledgerStore.Close()

	dispatcher := notify.NewDispatcher(ledgerStore, ledgerStore, cfg.NotifyWorkers, cfg.NotifyQueue, logger)
	dispatcher.Start()

	// Initialize Layers
	ledger := service.NewLedger(ledgerStore,
		service.WithNotifier(dispatcher),
		service.WithLogger(logger),
		service.WithRetries(cfg.TransferRetries),
	)
	handler := api.NewHandler(
		ledger,
		analytics.NewAggregator(ledgerStore, nil),
		notify.NewInbox(ledgerStore),
		auth.NewVerifier(cfg.AuthSecret),
		logger,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	// Drain queued notifications before the store closes.
	dispatcher.Close()
	slog.Info("Server exited")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		slog.Warn("Using in-memory store, data is lost on exit")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.DBSource, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
