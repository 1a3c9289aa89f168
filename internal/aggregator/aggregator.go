// Package aggregator collapses hourly analytics rows into daily rows with
// impression-weighted statistics.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/seolens/searchsync/internal/search"
	"github.com/seolens/searchsync/internal/store"
	"github.com/seolens/searchsync/internal/telemetry"
)

// Status classifies the outcome of one aggregation attempt.
type Status string

// Aggregation outcomes.
const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusNoData  Status = "no_data"
	StatusError   Status = "error"
)

// Result reports one single-date aggregation.
type Result struct {
	SiteID     int64         `json:"site_id"`
	Date       time.Time     `json:"date"`
	Status     Status        `json:"status"`
	HourlyRows int           `json:"hourly_rows"`
	DailyRows  int           `json:"daily_rows"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// RangeSummary reports a multi-date aggregation run.
type RangeSummary struct {
	Success    int      `json:"success"`
	Skipped    int      `json:"skipped"`
	NoData     int      `json:"no_data"`
	Failed     int      `json:"failed"`
	HourlyRows int      `json:"hourly_rows"`
	DailyRows  int      `json:"daily_rows"`
	Results    []Result `json:"results"`
}

// Aggregator recomputes daily rows from hourly rows. It makes no network
// calls; the only suspension points are storage I/O.
type Aggregator struct {
	perf   store.PerformanceRepository
	clock  search.Clock
	logger *zap.Logger
}

// New constructs an Aggregator.
func New(perf store.PerformanceRepository, clock search.Clock, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{perf: perf, clock: clock, logger: logger}
}

// AggregateDay folds all hourly rows for (site, date) into daily rows,
// replacing prior aggregates. Errors are captured in the result rather than
// propagated, so range runs never short-circuit; partially-written state is
// impossible because the delete and insert share one transaction.
func (a *Aggregator) AggregateDay(ctx context.Context, siteID int64, date time.Time, forceOverwrite bool) Result {
	started := a.clock.Now()
	day := search.Day(date)
	res := Result{SiteID: siteID, Date: day}

	finish := func(status Status, err error) Result {
		res.Status = status
		res.Duration = a.clock.Now().Sub(started)
		if err != nil {
			res.Error = err.Error()
			a.logger.Error("aggregation failed",
				zap.Int64("site_id", siteID),
				zap.Time("date", day),
				zap.Error(err))
		}
		telemetry.RecordAggregation(string(status), res.Duration)
		return res
	}

	exists, err := a.perf.HasDaily(ctx, siteID, day)
	if err != nil {
		return finish(StatusError, fmt.Errorf("check daily rows: %w", err))
	}
	if exists && !forceOverwrite {
		return finish(StatusSkipped, nil)
	}

	hourly, err := a.perf.ListHourly(ctx, siteID, day)
	if err != nil {
		return finish(StatusError, fmt.Errorf("load hourly rows: %w", err))
	}
	if len(hourly) == 0 {
		return finish(StatusNoData, nil)
	}
	res.HourlyRows = len(hourly)

	daily := Fold(hourly)
	written, err := a.perf.ReplaceDaily(ctx, siteID, day, daily)
	if err != nil {
		return finish(StatusError, fmt.Errorf("replace daily rows: %w", err))
	}
	res.DailyRows = int(written)
	a.logger.Info("aggregated hourly data into daily rows",
		zap.Int64("site_id", siteID),
		zap.Time("date", day),
		zap.Int("hourly_rows", res.HourlyRows),
		zap.Int("daily_rows", res.DailyRows))
	return finish(StatusSuccess, nil)
}

// AggregateRange runs AggregateDay for each date in [startDate, endDate]
// ascending, collecting every result without short-circuiting on failures.
func (a *Aggregator) AggregateRange(
	ctx context.Context,
	siteID int64,
	startDate, endDate time.Time,
	forceOverwrite bool,
) (RangeSummary, error) {
	start := search.Day(startDate)
	end := search.Day(endDate)
	if start.After(end) {
		return RangeSummary{}, fmt.Errorf("start date %s is after end date %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	var summary RangeSummary
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		res := a.AggregateDay(ctx, siteID, day, forceOverwrite)
		summary.Results = append(summary.Results, res)
		summary.HourlyRows += res.HourlyRows
		summary.DailyRows += res.DailyRows
		switch res.Status {
		case StatusSuccess:
			summary.Success++
		case StatusSkipped:
			summary.Skipped++
		case StatusNoData:
			summary.NoData++
		case StatusError:
			summary.Failed++
		}
	}
	return summary, nil
}

// Fold groups hourly rows by (query, page, device, country) and computes the
// daily metrics: clicks and impressions are plain sums; CTR and position are
// impression-weighted averages, so low-traffic hours do not bias the result.
// Output order is deterministic.
func Fold(hourly []search.PerformanceRecord) []search.PerformanceRecord {
	type bucket struct {
		clicks      int64
		impressions int64
		ctrWeighted float64
		posWeighted float64
	}
	groups := make(map[search.GroupKey]*bucket)
	var order []search.GroupKey
	var siteID int64
	var date time.Time
	for _, r := range hourly {
		siteID = r.SiteID
		date = search.Day(r.Date)
		key := r.Key()
		b, ok := groups[key]
		if !ok {
			b = &bucket{}
			groups[key] = b
			order = append(order, key)
		}
		b.clicks += r.Clicks
		b.impressions += r.Impressions
		b.ctrWeighted += r.CTR * float64(r.Impressions)
		b.posWeighted += r.Position * float64(r.Impressions)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.Query != b.Query {
			return a.Query < b.Query
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Device != b.Device {
			return a.Device < b.Device
		}
		return a.Country < b.Country
	})

	out := make([]search.PerformanceRecord, 0, len(order))
	for _, key := range order {
		b := groups[key]
		rec := search.PerformanceRecord{
			SiteID:      siteID,
			Date:        date,
			Query:       key.Query,
			Page:        key.Page,
			Device:      key.Device,
			Country:     key.Country,
			SearchType:  search.DefaultSearchType,
			Clicks:      b.clicks,
			Impressions: b.impressions,
		}
		if b.impressions > 0 {
			rec.CTR = b.ctrWeighted / float64(b.impressions)
			rec.Position = b.posWeighted / float64(b.impressions)
		}
		out = append(out, rec)
	}
	return out
}
