package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/params"
	"github.com/uhyunpark/swapbook/pkg/api"
	"github.com/uhyunpark/swapbook/pkg/app/core/audit"
	"github.com/uhyunpark/swapbook/pkg/app/core/matching"
	"github.com/uhyunpark/swapbook/pkg/app/core/order"
	"github.com/uhyunpark/swapbook/pkg/app/core/verify"
	"github.com/uhyunpark/swapbook/pkg/app/exchange"
	"github.com/uhyunpark/swapbook/pkg/storage"
	"github.com/uhyunpark/swapbook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	os.Exit(exitCode(params.LoadFromEnv(""))) // "" means load from .env in current directory
}

// exitCode runs the exchange and returns the process status. Deferred
// cleanup, including the logger flush, runs before main exits.
func exitCode(cfg params.Config) int {
	level, err := util.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Printf("logger: %v", err)
		return 1
	}
	logger, err := util.NewLoggerWithFile(cfg.Log.File, level)
	if err != nil {
		log.Printf("logger: %v", err)
		return 1
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", level.String())

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("exchange_failed", "err", err)
		return 1
	}
	return 0
}

func run(cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Storage ----
	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	sugar.Infow("store_opened", "backend", cfg.Storage.Backend, "path", cfg.Storage.Path)

	var journal storage.Journal = storage.NewNopJournal()
	if cfg.Storage.JournalFile != "" {
		fj, err := storage.NewFileJournal(cfg.Storage.JournalFile)
		if err != nil {
			return err
		}
		defer fj.Close()
		journal = fj
	}

	// ---- Core ----
	registry, err := verify.NewDefaultRegistry(cfg.Platforms...)
	if err != nil {
		return err
	}
	clock := util.RealClock{}
	engine := matching.NewEngine(store, clock, sugar)
	auditLog := audit.NewLog(store, clock, sugar)

	// The fill hook needs the API server, which needs the service.
	var apiServer *api.Server
	svc, err := exchange.NewService(exchange.Config{
		Verifier: registry,
		Matcher:  engine,
		Recorder: auditLog,
		Book:     store,
		Clock:    clock,
		Logger:   sugar,
		OnFill: func(res matching.Result) {
			journal.Append(fillLine(res))
			apiServer.BroadcastFill(res)
		},
	})
	if err != nil {
		return err
	}

	// ---- API Server ----
	apiServer = api.NewServer(svc, cfg.API.AllowedOrigins, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("exchange_starting",
			"addr", cfg.API.Addr,
			"platforms", registry.Platforms())
		errCh <- apiServer.Start(cfg.API.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sugar.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	return apiServer.Shutdown(shutdownCtx)
}

func openStore(cfg params.Storage) (order.Store, error) {
	switch cfg.Backend {
	case params.StoreMemory:
		return storage.NewMemoryStore(), nil
	case params.StorePebble:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		return storage.NewPebbleStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func fillLine(res matching.Result) string {
	line := fmt.Sprintf("fill order=%d", res.Order.ID)
	for _, o := range res.Filled {
		line += fmt.Sprintf(" filled=%d:%s->%s", o.ID, o.SellAmount, o.SellCurrency)
	}
	for _, o := range res.Created {
		line += fmt.Sprintf(" remainder=%d:%s/%s", o.ID, o.BuyAmount, o.SellAmount)
	}
	return line
}
