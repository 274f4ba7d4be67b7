package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warp/resale-engine/api"
	"github.com/warp/resale-engine/cart"
	"github.com/warp/resale-engine/commerce"
	memstore "github.com/warp/resale-engine/commerce/store"
	"github.com/warp/resale-engine/config"
	"github.com/warp/resale-engine/logging"
	"github.com/warp/resale-engine/reconcile"
	redisstore "github.com/warp/resale-engine/store/redis"
	"github.com/warp/resale-engine/store/sqlite"
)

// app is the wired engine shared by both commands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *sqlite.Store
	redis   *goredis.Client
	orders  *commerce.OrderService
	cache   commerce.OrderCache
	carts   api.CartRepositories
	matcher *reconcile.Matcher
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}
	return cfg, cfg.Validate()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	a.orders = commerce.NewOrderService(store, logger)

	if cfg.Redis.Enabled {
		client, err := redisstore.Open(ctx, cfg.Redis.Addr)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.redis = client
		a.cache = redisstore.NewOrderCache(client, logger)
		a.carts = func(device string) cart.Repository {
			return redisstore.NewCartRepository(client, device, cfg.Redis.CartTTL)
		}
		logger.Info("using redis for carts and cached orders", "addr", cfg.Redis.Addr)
	} else {
		a.cache = memstore.NewMemoryOrderCache()
		a.carts = api.MemoryCartRepositories()
		logger.Warn("redis disabled, carts and cached orders live in process memory")
	}

	a.matcher = reconcile.New(reconcile.Config{
		Store:       store,
		Orders:      a.orders,
		Cache:       a.cache,
		Logger:      logger,
		Concurrency: cfg.Reconciliation.Concurrency,
		Prune:       cfg.Reconciliation.Prune,
	})
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.store.Close()
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := api.NewReconciliationScheduler(a.store, a.matcher, a.logger)
	scheduler.CheckInterval = cfg.Reconciliation.Interval
	scheduler.Enabled = cfg.Reconciliation.Enabled

	handler := api.NewHandler(a.store, a.orders, a.cache, a.carts, scheduler, a.logger)
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	a.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err = server.Shutdown(ctx)
	scheduler.Stop()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}

// =============================================================================
// RECONCILE
// =============================================================================

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := api.NewReconciliationScheduler(a.store, a.matcher, a.logger)
	run, report, err := scheduler.RunNow(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"run_id": run.ID, "status": run.Status, "report": report})
}
