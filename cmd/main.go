package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pointsboard/internal/adapters/cache"
	"github.com/okian/pointsboard/internal/adapters/http/api"
	"github.com/okian/pointsboard/internal/adapters/http/swagger"
	"github.com/okian/pointsboard/internal/adapters/repository"
	app "github.com/okian/pointsboard/internal/app"
	"github.com/okian/pointsboard/internal/config"
	"github.com/okian/pointsboard/internal/domain/rules"
	"github.com/okian/pointsboard/internal/domain/timeframe"
	"github.com/okian/pointsboard/internal/platform/otel"
	"github.com/okian/pointsboard/pkg/logger"
	"github.com/okian/pointsboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
	serviceName               = "pointsboard"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "points service exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	shutdownTracing, err := otel.Setup(ctx, serviceName, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn(ctx, "tracing shutdown failed", logger.Error(err))
		}
	}()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := a.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, a.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	// Queued awards are drained after the listener stops taking new ones.
	if err := a.svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// application is the wired process minus the listener.
type application struct {
	store   *repository.SQLiteStore
	cache   cache.Cache
	svc     *app.Service
	handler http.Handler
}

// build opens the store and cache and wires the service and routes.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	weekStart, err := cfg.Weekday()
	if err != nil {
		return nil, err
	}

	store, err := repository.OpenSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var c cache.Cache
	if cfg.RedisAddr != "" {
		c = cache.DialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if !c.Available(ctx) {
			// The engines fall back to the store while Redis is down.
			log.Warn(ctx, "redis unavailable at startup", logger.String("addr", cfg.RedisAddr))
		}
		log.Info(ctx, "using redis cache", logger.String("addr", cfg.RedisAddr))
	} else {
		c = cache.NewMemory()
		log.Info(ctx, "using in-process cache")
	}

	svc := app.New(store,
		app.WithCache(c),
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxAttempts(cfg.AwardMaxAttempts),
		app.WithReadTimeout(cfg.ReadTimeout()),
		app.WithWriteTimeout(cfg.WriteTimeout()),
		app.WithCacheTTL(cfg.CacheTTL()),
		app.WithCacheDepth(cfg.CacheDepth),
		app.WithMaxLimit(cfg.MaxLeaderboardLimit),
		app.WithCalendar(timeframe.New(timeframe.WithLocation(loc), timeframe.WithWeekStart(weekStart))),
		app.WithRules(rules.NewTable(rules.WithPointOverrides(cfg.PointRules))),
	)

	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, api.WithLogger(log.Named("http"))).Register(mux)

	return &application{store: store, cache: c, svc: svc, handler: mux}, nil
}

func (a *application) close(ctx context.Context) {
	log := logger.Get()
	if err := a.cache.Close(); err != nil {
		log.Warn(ctx, "cache close failed", logger.Error(err))
	}
	if err := a.store.Close(); err != nil {
		log.Error(ctx, "store close failed", logger.Error(err))
	}
}

// startSystemMetricsUpdater periodically records runtime metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater periodically refreshes gauges derived from
// service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes queue and user gauges. GetStats records
// the user total itself.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats, err := svc.GetStats(ctx)
	if err != nil {
		logger.Get().Warn(ctx, "stats refresh failed", logger.Error(err))
		return
	}
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateWorkerActiveCount(stats.ActiveWorkers)
}
