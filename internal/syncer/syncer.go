// Package syncer drives end-to-end ingestion of analytics data for one site
// across a day range, against a strictly sequential upstream API.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seolens/searchsync/internal/search"
	"github.com/seolens/searchsync/internal/searchapi"
	"github.com/seolens/searchsync/internal/store"
	"github.com/seolens/searchsync/internal/telemetry"
)

// ErrSyncInProgress signals that an active sync already exists for the
// (site, type) pair and the caller did not ask to resume it.
var ErrSyncInProgress = errors.New("an incomplete sync already exists; resume it or wait")

// Config controls pacing and pagination for sync jobs.
type Config struct {
	// PageSize is the fixed row limit per upstream fetch.
	PageSize int
	// RequestsPerSecond paces upstream calls. Rapid-fire requests
	// demonstrably fail upstream; this pause is an operational constraint,
	// not an optimization.
	RequestsPerSecond float64
	// HourlyLookbackDays bounds hourly syncs; historical hourly data is
	// unavailable upstream beyond this window.
	HourlyLookbackDays int
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = searchapi.DefaultPageSize
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 1
	}
	if c.HourlyLookbackDays <= 0 {
		c.HourlyLookbackDays = searchapi.MaxHourlyLookbackDays
	}
}

// Options selects what one Sync invocation does.
type Options struct {
	SiteID    int64
	TotalDays int
	SyncType  search.SyncType
	Mode      search.UpsertMode
	Resume    bool
}

// Stats summarizes one finished sync job.
type Stats struct {
	ProgressID    int64         `json:"progress_id"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	DaysRequested int           `json:"days_requested"`
	DaysAttempted int           `json:"days_attempted"`
	DaysFailed    int           `json:"days_failed"`
	RecordsSynced int64         `json:"records_synced"`
	Resumed       bool          `json:"resumed"`
	Clamped       bool          `json:"clamped"`
	Duration      time.Duration `json:"duration"`
}

// Syncer runs sync jobs. One Syncer may serve many jobs, but calls to the
// upstream client within a job are strictly sequential.
type Syncer struct {
	client   searchapi.Client
	progress store.ProgressRepository
	perf     store.PerformanceRepository
	sites    store.SiteRepository
	limiter  *rate.Limiter
	clock    search.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Syncer.
func New(
	client searchapi.Client,
	progress store.ProgressRepository,
	perf store.PerformanceRepository,
	sites store.SiteRepository,
	clock search.Clock,
	cfg Config,
	logger *zap.Logger,
) *Syncer {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		client:   client,
		progress: progress,
		perf:     perf,
		sites:    sites,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Sync runs one job to completion. Per-day fetch errors are isolated: the
// day's partial results are persisted and the loop moves on. Only structural
// failures (storage errors) mark the job failed and propagate.
func (s *Syncer) Sync(ctx context.Context, opts Options) (Stats, error) {
	start := s.clock.Now()
	if err := validate(opts); err != nil {
		return Stats{}, err
	}
	site, err := s.sites.GetSite(ctx, opts.SiteID)
	if err != nil {
		return Stats{}, fmt.Errorf("load site %d: %w", opts.SiteID, err)
	}

	plan, err := s.resolveRange(ctx, opts)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		ProgressID:    plan.progressID,
		StartDate:     plan.start,
		EndDate:       plan.end,
		DaysRequested: plan.daysRequested,
		Resumed:       plan.resumed,
		Clamped:       plan.clamped,
	}
	s.logger.Info("sync started",
		zap.Int64("site_id", opts.SiteID),
		zap.String("sync_type", string(opts.SyncType)),
		zap.String("mode", string(opts.Mode)),
		zap.Time("start_date", plan.start),
		zap.Time("end_date", plan.end),
		zap.Bool("resumed", plan.resumed),
		zap.Bool("clamped", plan.clamped),
		zap.Int64("progress_id", plan.progressID))

	daysCompleted := plan.daysCompleted
	for day := plan.start; !day.After(plan.end); day = day.AddDate(0, 0, 1) {
		// Cancellation is only honored at day boundaries so partial-date
		// state is never left inconsistent with the progress record. The
		// record stays active, making the job resumable after restart.
		if ctx.Err() != nil {
			stats.Duration = s.clock.Now().Sub(start)
			telemetry.RecordSyncJob(string(opts.SyncType), "canceled")
			return stats, ctx.Err()
		}

		rows, dayErr := s.fetchDay(ctx, site.Property, day, opts)
		if dayErr != nil {
			// Partial-failure isolation at day granularity: keep whatever
			// pages were fetched, log, and move on.
			stats.DaysFailed++
			telemetry.RecordDayFailure(opts.SiteID)
			s.logger.Error("day fetch failed, persisting partial results",
				zap.Int64("site_id", opts.SiteID),
				zap.Time("date", day),
				zap.Error(dayErr))
		}

		persisted, err := s.persistDay(ctx, opts, day, rows)
		if err != nil {
			return s.failJob(ctx, stats, start, opts, plan.progressID, fmt.Errorf("persist %s: %w", day.Format("2006-01-02"), err))
		}

		daysCompleted++
		stats.DaysAttempted++
		stats.RecordsSynced += persisted
		telemetry.RecordRowsSynced(opts.SiteID, string(opts.SyncType), persisted)

		// The progress write happens only after the day's data is durably
		// committed, so a crash between the two re-fetches at most one day.
		if err := s.progress.UpdateProgress(ctx, plan.progressID, day, daysCompleted, persisted); err != nil {
			return s.failJob(ctx, stats, start, opts, plan.progressID, fmt.Errorf("update progress: %w", err))
		}
	}

	if err := s.progress.CompleteSync(ctx, plan.progressID); err != nil {
		return s.failJob(ctx, stats, start, opts, plan.progressID, fmt.Errorf("complete sync: %w", err))
	}
	stats.Duration = s.clock.Now().Sub(start)
	telemetry.RecordSyncJob(string(opts.SyncType), "success")
	s.logger.Info("sync finished",
		zap.Int64("site_id", opts.SiteID),
		zap.Int64("progress_id", plan.progressID),
		zap.Int("days_attempted", stats.DaysAttempted),
		zap.Int("days_failed", stats.DaysFailed),
		zap.Int64("records_synced", stats.RecordsSynced),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// rangePlan is the resolved date range and progress bookkeeping for one job.
type rangePlan struct {
	progressID    int64
	start         time.Time
	end           time.Time
	daysRequested int
	daysCompleted int
	resumed       bool
	clamped       bool
}

// resolveRange decides where the job starts: continuing an incomplete sync
// when asked to resume, otherwise opening a fresh progress record over
// [today − N, today].
func (s *Syncer) resolveRange(ctx context.Context, opts Options) (rangePlan, error) {
	today := search.Day(s.clock.Now())

	if opts.Resume {
		prev, err := s.progress.GetIncompleteSync(ctx, opts.SiteID, opts.SyncType)
		switch {
		case err == nil:
			return s.resumePlan(prev, today, opts), nil
		case errors.Is(err, store.ErrNotFound):
			// Nothing to resume; fall through to a fresh job.
		default:
			return rangePlan{}, fmt.Errorf("look up incomplete sync: %w", err)
		}
	} else {
		// Guard against overlapping jobs for the same (site, type): the
		// upstream credential cannot tolerate interleaved access.
		_, err := s.progress.GetIncompleteSync(ctx, opts.SiteID, opts.SyncType)
		if err == nil {
			return rangePlan{}, ErrSyncInProgress
		}
		if !errors.Is(err, store.ErrNotFound) {
			return rangePlan{}, fmt.Errorf("look up incomplete sync: %w", err)
		}
	}

	totalDays := opts.TotalDays
	clamped := false
	if opts.SyncType == search.SyncHourly && totalDays > s.cfg.HourlyLookbackDays {
		clamped = true
		totalDays = s.cfg.HourlyLookbackDays
		s.logger.Warn("requested range exceeds hourly lookback window, clamping",
			zap.Int("requested_days", opts.TotalDays),
			zap.Int("clamped_days", totalDays))
	}
	progressID, err := s.progress.StartSync(ctx, opts.SiteID, totalDays, opts.SyncType)
	if err != nil {
		return rangePlan{}, fmt.Errorf("start sync: %w", err)
	}
	start := today.AddDate(0, 0, -totalDays)
	return rangePlan{
		progressID:    progressID,
		start:         start,
		end:           today,
		daysRequested: totalDays + 1,
		clamped:       clamped,
	}, nil
}

func (s *Syncer) resumePlan(prev store.SyncProgress, today time.Time, opts Options) rangePlan {
	if prev.TotalDaysRequested != opts.TotalDays {
		// The persisted record's original range wins; changing the span
		// mid-job would silently diverge from what was promised.
		s.logger.Warn("resume request differs from persisted range, honoring original",
			zap.Int("requested_days", opts.TotalDays),
			zap.Int("persisted_days", prev.TotalDaysRequested))
	}
	var start time.Time
	if prev.LastCompletedDate != nil {
		start = search.Day(*prev.LastCompletedDate).AddDate(0, 0, 1)
	} else {
		start = today.AddDate(0, 0, -prev.TotalDaysRequested)
	}
	return rangePlan{
		progressID:    prev.ID,
		start:         start,
		end:           today,
		daysRequested: prev.TotalDaysRequested + 1,
		daysCompleted: prev.DaysCompleted,
		resumed:       true,
	}
}

// fetchDay pages through one date sequentially until a short page signals
// exhaustion. On error the remaining pages are abandoned and whatever was
// fetched so far is returned alongside the error.
func (s *Syncer) fetchDay(
	ctx context.Context,
	property string,
	day time.Time,
	opts Options,
) ([]searchapi.Row, error) {
	var rows []searchapi.Row
	for offset := 0; ; offset += s.cfg.PageSize {
		if err := s.limiter.Wait(ctx); err != nil {
			return rows, fmt.Errorf("pacing wait: %w", err)
		}
		page, err := s.client.FetchPage(ctx, searchapi.PageRequest{
			Property: property,
			Date:     day,
			StartRow: offset,
			RowLimit: s.cfg.PageSize,
			SyncType: opts.SyncType,
		})
		if err != nil {
			return rows, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		telemetry.RecordPageFetched(opts.SiteID)
		rows = append(rows, page...)
		if len(page) < s.cfg.PageSize {
			return rows, nil
		}
	}
}

func (s *Syncer) persistDay(
	ctx context.Context,
	opts Options,
	day time.Time,
	rows []searchapi.Row,
) (int64, error) {
	records := make([]search.PerformanceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToRecord(opts.SiteID, day))
	}
	if opts.SyncType == search.SyncHourly {
		return s.perf.UpsertHourly(ctx, opts.SiteID, day, records, opts.Mode)
	}
	return s.perf.UpsertDaily(ctx, opts.SiteID, day, records, opts.Mode)
}

// failJob marks the progress record failed and returns the structural error.
func (s *Syncer) failJob(
	ctx context.Context,
	stats Stats,
	start time.Time,
	opts Options,
	progressID int64,
	cause error,
) (Stats, error) {
	stats.Duration = s.clock.Now().Sub(start)
	telemetry.RecordSyncJob(string(opts.SyncType), "error")
	if failErr := s.progress.FailSync(ctx, progressID, cause.Error()); failErr != nil {
		s.logger.Error("failed to record sync failure",
			zap.Int64("progress_id", progressID),
			zap.Error(failErr))
	}
	return stats, cause
}

func validate(opts Options) error {
	if opts.SiteID <= 0 {
		return fmt.Errorf("site id must be positive")
	}
	if opts.TotalDays <= 0 {
		return fmt.Errorf("total days must be positive")
	}
	if !opts.Mode.Valid() {
		return fmt.Errorf("invalid upsert mode %q", opts.Mode)
	}
	if opts.SyncType != search.SyncDaily && opts.SyncType != search.SyncHourly {
		return fmt.Errorf("invalid sync type %q", opts.SyncType)
	}
	return nil
}
