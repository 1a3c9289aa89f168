// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/seolens/searchsync/internal/aggregator"
	"github.com/seolens/searchsync/internal/api"
	"github.com/seolens/searchsync/internal/clock/system"
	"github.com/seolens/searchsync/internal/config"
	"github.com/seolens/searchsync/internal/logging"
	"github.com/seolens/searchsync/internal/scheduler"
	"github.com/seolens/searchsync/internal/searchapi"
	"github.com/seolens/searchsync/internal/storage/postgres"
	"github.com/seolens/searchsync/internal/syncer"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the commands that need it.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Pool       *pgxpool.Pool
	Sites      *postgres.SiteStore
	Progress   *postgres.ProgressStore
	Perf       *postgres.PerformanceStore
	Client     *searchapi.HTTPClient
	Syncer     *syncer.Syncer
	Aggregator *aggregator.Aggregator
	Scheduler  *scheduler.Scheduler
	Server     *api.Server
}

// New builds the full service graph from configuration. It fails fast if any
// critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.ConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	clk := system.Clock{}

	sites, err := postgres.NewSiteStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	progress, err := postgres.NewProgressStore(pool, clk)
	if err != nil {
		pool.Close()
		return nil, err
	}
	perf, err := postgres.NewPerformanceStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	client, err := searchapi.NewHTTPClient(searchapi.Config{
		BaseURL:      cfg.SearchAPI.BaseURL,
		TokenURL:     cfg.SearchAPI.TokenURL,
		ClientID:     cfg.SearchAPI.ClientID,
		ClientSecret: cfg.SearchAPI.ClientSecret,
		RefreshToken: cfg.SearchAPI.RefreshToken,
		AccessToken:  cfg.SearchAPI.AccessToken,
		Timeout:      cfg.APITimeout(),
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init upstream client: %w", err)
	}

	sync := syncer.New(client, progress, perf, sites, clk, syncer.Config{
		PageSize:           cfg.Sync.PageSize,
		RequestsPerSecond:  cfg.Sync.RequestsPerSecond,
		HourlyLookbackDays: cfg.Sync.HourlyLookbackDays,
	}, logger)

	agg := aggregator.New(perf, clk, logger)

	sched := scheduler.New(agg, sites, progress, clk, scheduler.Config{
		AggregateSpec:     cfg.Scheduler.AggregateSpec,
		CleanupSpec:       cfg.Scheduler.CleanupSpec,
		AggregateDaysBack: cfg.Scheduler.AggregateDaysBack,
		Retention:         cfg.Retention(),
	}, logger)

	server := api.NewServer(sync, agg, sites, progress, pool, cfg, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Sites:      sites,
		Progress:   progress,
		Perf:       perf,
		Client:     client,
		Syncer:     sync,
		Aggregator: agg,
		Scheduler:  sched,
		Server:     server,
	}, nil
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully. The
// scheduler runs alongside the server when enabled.
func (a *App) Run(ctx context.Context) error {
	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer a.Scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
