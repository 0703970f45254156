/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the capacity forecasting server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML file, environment, then flags)
  2. Initialize SQLite store
  3. Build caches, forecast service and client aggregator
  4. Wire the event bus: invalidator, debounced refresh, optional Redis relay
  5. Start the warm-up scheduler
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop scheduler, debouncer and relay
  4. Close database connection

EXAMPLES:
  ./server -db="./data/capacity.db"
  ./server -config=capacity.yaml -port=3000
  REDIS_ENABLED=true REDIS_ADDRESS=redis:6379 ./server

SEE ALSO:
  - config/config.go: Configuration layers and environment variables
  - api/server.go: Router configuration
  - forecast/invalidator.go: Event-driven cache invalidation
*/
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/capacity-engine/api"
	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/clients"
	"github.com/warp/capacity-engine/config"
	"github.com/warp/capacity-engine/events"
	"github.com/warp/capacity-engine/forecast"
	"github.com/warp/capacity-engine/matrix"
	"github.com/warp/capacity-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	// Caches and services
	matrices := cache.New(cache.Options{Name: "matrix", Logger: logger})
	summaries := cache.New(cache.Options{Name: "summary", Logger: logger})

	svc := forecast.NewService(matrix.NewGenerator(store, logger), matrices, forecast.Options{
		TTL:    cfg.Cache.MatrixTTL,
		Logger: logger,
	})
	agg := clients.NewAggregator(store, summaries, cfg.Cache.SummaryTTL, logger)

	// Warm-up scheduler and debounced refresh
	scheduler := api.NewWarmUpScheduler(svc, summaries, logger)
	if cfg.Cache.WarmInterval > 0 {
		scheduler.CheckInterval = cfg.Cache.WarmInterval
	} else {
		scheduler.Enabled = false
	}

	var refresh *forecast.Debouncer
	if cfg.Cache.RefreshDebounce > 0 {
		refresh = forecast.NewDebouncer(cfg.Cache.RefreshDebounce, scheduler.Refresh)
		defer refresh.Stop()
	}

	// Event bus
	bus := events.NewBus(logger)
	detach := forecast.NewInvalidator(matrices, summaries, refresh, logger).Attach(bus)
	defer detach()

	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := events.DialRedis(ctx, cfg.Redis.Address, cfg.Redis.Password)
		cancel()
		if err != nil {
			return err
		}
		relay := events.NewRedisRelay(client, cfg.Redis.Channel, bus, logger)
		defer client.Close()
		if err := relay.Start(context.Background()); err != nil {
			return err
		}
		defer relay.Stop()
	}

	scheduler.Start()
	defer scheduler.Stop()

	// Handler and router
	handler := api.NewHandler(store, svc, agg, summaries, bus, logger)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins...)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
