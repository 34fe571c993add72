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

	"github.com/okian/credence/internal/adapters/chain"
	"github.com/okian/credence/internal/adapters/http/api"
	"github.com/okian/credence/internal/adapters/http/swagger"
	"github.com/okian/credence/internal/adapters/mirror"
	"github.com/okian/credence/internal/adapters/repository"
	app "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/config"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// The logger may not be initialized yet.
		os.Stderr.WriteString("credence: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> .env -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	initMetrics(cfg)

	opts, err := serviceOptions(cfg, log)
	if err != nil {
		return err
	}
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	mux := http.NewServeMux()
	api.NewServer(svc, svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)
	swagger.Register(ctx, mux)
	srv := newHTTPServer(cfg.Addr, mux)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", api.ErrServe, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// serviceOptions translates configuration into service options, building the
// store, the chain client and the score mirror on the way.
func serviceOptions(cfg *config.Config, log logger.Logger) ([]app.Option, error) {
	store, err := repository.Open(repository.Config{
		Driver:       cfg.StorageDriver,
		DSN:          cfg.StorageDSN,
		MaxOpenConns: cfg.MaxOpenConns,
		AutoMigrate:  cfg.AutoMigrate,
	}, log.Named("repository"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithInitialScore(cfg.InitialScore),
		app.WithScoreFloor(cfg.ScoreFloor),
		app.WithLedgerRetry(cfg.ApplyMaxAttempts, ms(cfg.ApplyBackoffMS), ms(cfg.ApplyMaxBackoffMS)),
		app.WithEndorsementBaseRate(cfg.EndorsementBaseRate),
		app.WithVerificationDeltas(cfg.TestDelta, cfg.PeerDelta, cfg.ProjectDelta),
		app.WithMinPeerApprovals(cfg.MinPeerApprovals),
		app.WithMinReviewerReputation(cfg.MinReviewerReputation),
		app.WithJobDeltas(cfg.CompletionDelta, cfg.DisputePenalty),
		app.WithConsistencyBonus(cfg.ConsistencyBonus),
		app.WithRetryQueueSize(cfg.RetryQueueSize),
		app.WithRetryWorkers(cfg.RetryWorkerCount),
		app.WithRetryPolicy(cfg.RetryMaxAttempts, ms(cfg.RetryBackoffMS)),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
	}

	if cfg.ChainEnabled {
		client, err := chain.New(chain.Config{
			Network:       cfg.ChainNetwork,
			NodeURL:       cfg.ChainNodeURL,
			ModuleAddress: cfg.ChainModuleAddress,
			Timeout:       ms(cfg.ChainTimeoutMS),
		}, chain.WithLogger(log.Named("chain")))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("chain client: %w", err)
		}
		opts = append(opts, app.WithChain(client))
	}

	if cfg.SupabaseURL != "" {
		m, err := mirror.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("score mirror: %w", err)
		}
		opts = append(opts, app.WithMirror(mirror.NewAsync(m, cfg.MirrorBuffer, log.Named("mirror"))))
	}
	return opts, nil
}

// initMetrics rebuilds the global metrics manager from configuration. It must
// run before the API captures the registry.
func initMetrics(cfg *config.Config) {
	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(ms(cfg.MetricsRefreshMS)),
	)
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
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

// startServiceMetricsUpdater updates service metrics until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
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

// updateServiceMetrics refreshes gauges from the service stats.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if ranked, ok := stats["rankedUsers"].(int); ok {
		metrics.UpdateRankIndexSize(ranked)
	}
	if total, ok := stats["totalUsers"].(int); ok {
		metrics.UpdateUsersTotal(total)
	}
}
