/*
scheduler.go - Cache warm-up scheduler

PURPOSE:
  Keeps the default dashboard matrices warm. Periodically sweeps expired
  entries from the matrix and summary caches and recomputes the default
  matrices (virtual and actual, all clients, current month) so the first
  dashboard load after expiry does not pay for generation.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Warms immediately on start, then on every tick
  - Loader failures are logged and skipped by cache.WarmUp; a failed
    warm-up never stops the scheduler

CONFIGURATION:
  - CheckInterval: How often to warm (default: 4 minutes, under the
    default 5 minute matrix TTL)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewWarmUpScheduler(svc, summaries, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - forecast/service.go: WarmUp and DefaultRequests
  - forecast/debounce.go: Event-driven refresh between ticks
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/capacity-engine/cache"
	"github.com/warp/capacity-engine/forecast"
)

// WarmUpScheduler periodically sweeps and re-warms the caches.
type WarmUpScheduler struct {
	Forecast      *forecast.Service
	Summaries     *cache.Cache
	CheckInterval time.Duration
	Enabled       bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun    time.Time
	lastLoaded int
}

// NewWarmUpScheduler creates a new scheduler. summaries may be nil.
func NewWarmUpScheduler(svc *forecast.Service, summaries *cache.Cache, logger *slog.Logger) *WarmUpScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarmUpScheduler{
		Forecast:      svc,
		Summaries:     summaries,
		CheckInterval: 4 * time.Minute,
		Enabled:       true,
		logger:        logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (ws *WarmUpScheduler) Start() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.Enabled {
		ws.logger.Info("disabled, not starting")
		return
	}
	if ws.ticker != nil {
		return
	}

	ws.ticker = time.NewTicker(ws.CheckInterval)
	ws.stop = make(chan struct{})
	ws.wg.Add(1)

	go ws.run(ws.ticker, ws.stop)

	ws.logger.Info("started", "interval", ws.CheckInterval)
}

// Stop stops the scheduler and waits for a running warm-up to finish.
func (ws *WarmUpScheduler) Stop() {
	ws.mu.Lock()
	ticker, stop := ws.ticker, ws.stop
	ws.ticker = nil
	ws.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		ws.wg.Wait()
		ws.logger.Info("stopped")
	}
}

func (ws *WarmUpScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ws.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run immediately on start
	ws.warm(ctx)

	for {
		select {
		case <-ticker.C:
			ws.warm(ctx)
		case <-stop:
			return
		}
	}
}

func (ws *WarmUpScheduler) warm(ctx context.Context) {
	swept := ws.Forecast.Cache().Sweep()
	if ws.Summaries != nil {
		swept += ws.Summaries.Sweep()
	}

	start := time.Now()
	loaded := ws.Forecast.WarmUp(ctx)

	ws.mu.Lock()
	ws.lastRun = start
	ws.lastLoaded = loaded
	ws.mu.Unlock()

	ws.logger.Debug("warm-up complete",
		"loaded", loaded,
		"swept", swept,
		"duration", time.Since(start),
	)
}

// RunNow triggers an immediate warm-up (for testing/admin) and returns how
// many matrices were loaded.
func (ws *WarmUpScheduler) RunNow(ctx context.Context) int {
	ws.warm(ctx)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.lastLoaded
}

// Refresh is the debouncer callback: warm without sweeping.
func (ws *WarmUpScheduler) Refresh() {
	loaded := ws.Forecast.WarmUp(context.Background())
	ws.logger.Debug("refreshed after change", "loaded", loaded)
}

// LastRun returns when the last warm-up started.
func (ws *WarmUpScheduler) LastRun() time.Time {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.lastRun
}

// GetNextRunTime returns when the next scheduled warm-up will occur.
func (ws *WarmUpScheduler) GetNextRunTime() time.Time {
	return ws.LastRun().Add(ws.CheckInterval)
}
