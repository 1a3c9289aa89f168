// Package scheduler runs nightly aggregation and housekeeping on cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/seolens/searchsync/internal/aggregator"
	"github.com/seolens/searchsync/internal/search"
	"github.com/seolens/searchsync/internal/store"
)

// AggregateRunner recomputes daily rows. Implemented by *aggregator.Aggregator.
type AggregateRunner interface {
	AggregateRange(ctx context.Context, siteID int64, startDate, endDate time.Time, forceOverwrite bool) (aggregator.RangeSummary, error)
}

// Config selects cron specs and the nightly window.
type Config struct {
	// AggregateSpec is the cron expression for the nightly aggregation pass.
	AggregateSpec string
	// CleanupSpec is the cron expression for progress-row retention cleanup.
	CleanupSpec string
	// AggregateDaysBack sets how many days before yesterday the nightly
	// pass re-aggregates, to pick up late-arriving hourly rows.
	AggregateDaysBack int
	// Retention bounds how long completed progress rows are kept.
	Retention time.Duration
}

// Scheduler owns the cron runner and its registered jobs.
type Scheduler struct {
	agg      AggregateRunner
	sites    store.SiteRepository
	progress store.ProgressRepository
	clock    search.Clock
	cfg      Config
	cron     *cron.Cron
	logger   *zap.Logger
}

// New constructs a Scheduler. Jobs are registered at Start.
func New(
	agg AggregateRunner,
	sites store.SiteRepository,
	progress store.ProgressRepository,
	clock search.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AggregateDaysBack <= 0 {
		cfg.AggregateDaysBack = 1
	}
	return &Scheduler{
		agg:      agg,
		sites:    sites,
		progress: progress,
		clock:    clock,
		cfg:      cfg,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the cron entries and begins dispatching them.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.AggregateSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.AggregateSpec, func() {
			s.RunAggregation(ctx)
		}); err != nil {
			return fmt.Errorf("invalid aggregate cron spec %q: %w", s.cfg.AggregateSpec, err)
		}
	}
	if s.cfg.CleanupSpec != "" && s.cfg.Retention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.CleanupSpec, func() {
			s.RunCleanup(ctx)
		}); err != nil {
			return fmt.Errorf("invalid cleanup cron spec %q: %w", s.cfg.CleanupSpec, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunAggregation re-aggregates the trailing window ending yesterday for
// every registered site. Per-site failures are logged, never fatal.
func (s *Scheduler) RunAggregation(ctx context.Context) {
	sites, err := s.sites.ListSites(ctx)
	if err != nil {
		s.logger.Error("nightly aggregation: list sites failed", zap.Error(err))
		return
	}
	yesterday := search.Day(s.clock.Now()).AddDate(0, 0, -1)
	start := yesterday.AddDate(0, 0, -(s.cfg.AggregateDaysBack - 1))

	for _, site := range sites {
		summary, err := s.agg.AggregateRange(ctx, site.ID, start, yesterday, false)
		if err != nil {
			s.logger.Error("nightly aggregation failed",
				zap.Int64("site_id", site.ID),
				zap.String("property", site.Property),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("nightly aggregation done",
			zap.Int64("site_id", site.ID),
			zap.Int("success", summary.Success),
			zap.Int("skipped", summary.Skipped),
			zap.Int("no_data", summary.NoData),
			zap.Int("failed", summary.Failed),
			zap.Int("daily_rows", summary.DailyRows),
		)
	}
}

// RunCleanup removes completed progress rows past the retention window.
func (s *Scheduler) RunCleanup(ctx context.Context) {
	removed, err := s.progress.CleanupOldProgress(ctx, s.cfg.Retention)
	if err != nil {
		s.logger.Error("progress cleanup failed", zap.Error(err))
		return
	}
	s.logger.Info("progress cleanup done", zap.Int64("removed", removed))
}
