package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seolens/searchsync/internal/search"
)

var testDay = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// memPerfRepo implements the store.PerformanceRepository methods the
// aggregator touches, with real replace semantics.
type memPerfRepo struct {
	mu       sync.Mutex
	hourly   map[string][]search.PerformanceRecord
	daily    map[string][]search.PerformanceRecord
	failList bool
	failRepl bool
}

func newMemPerfRepo() *memPerfRepo {
	return &memPerfRepo{
		hourly: make(map[string][]search.PerformanceRecord),
		daily:  make(map[string][]search.PerformanceRecord),
	}
}

func dayKey(siteID int64, date time.Time) string {
	return fmt.Sprintf("%d|%s", siteID, search.Day(date).Format("2006-01-02"))
}

func (m *memPerfRepo) addHourly(siteID int64, date time.Time, hour int, query, page string, clicks, impressions int64, ctr, position float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := hour
	k := dayKey(siteID, date)
	m.hourly[k] = append(m.hourly[k], search.PerformanceRecord{
		SiteID:      siteID,
		Date:        search.Day(date),
		Hour:        &h,
		Query:       query,
		Page:        page,
		Device:      search.DefaultDevice,
		Country:     search.DefaultCountry,
		SearchType:  search.DefaultSearchType,
		Clicks:      clicks,
		Impressions: impressions,
		CTR:         ctr,
		Position:    position,
	})
}

func (m *memPerfRepo) UpsertHourly(context.Context, int64, time.Time, []search.PerformanceRecord, search.UpsertMode) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *memPerfRepo) UpsertDaily(context.Context, int64, time.Time, []search.PerformanceRecord, search.UpsertMode) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *memPerfRepo) ListHourly(_ context.Context, siteID int64, date time.Time) ([]search.PerformanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errors.New("storage down")
	}
	return append([]search.PerformanceRecord(nil), m.hourly[dayKey(siteID, date)]...), nil
}

func (m *memPerfRepo) HasDaily(_ context.Context, siteID int64, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.daily[dayKey(siteID, date)]) > 0, nil
}

func (m *memPerfRepo) ReplaceDaily(_ context.Context, siteID int64, date time.Time, rows []search.PerformanceRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRepl {
		return 0, errors.New("storage down")
	}
	m.daily[dayKey(siteID, date)] = append([]search.PerformanceRecord(nil), rows...)
	return int64(len(rows)), nil
}

func (m *memPerfRepo) dailyRows(siteID int64, date time.Time) []search.PerformanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]search.PerformanceRecord(nil), m.daily[dayKey(siteID, date)]...)
}

func newAggregatorForTest(repo *memPerfRepo) *Aggregator {
	return New(repo, fixedClock{now: testDay.Add(10 * time.Hour)}, nil)
}

func TestAggregateDayWeightedAverages(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	// One group across two hours with unequal traffic: position must be
	// weighted by impressions, (2.0*100 + 6.0*300)/400 = 5.0.
	repo.addHourly(7, testDay, 3, "shoes", "/p1", 10, 100, 0.10, 2.0)
	repo.addHourly(7, testDay, 15, "shoes", "/p1", 30, 300, 0.10, 6.0)

	res := newAggregatorForTest(repo).AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, 2, res.HourlyRows)
	require.Equal(t, 1, res.DailyRows)

	rows := repo.dailyRows(7, testDay)
	require.Len(t, rows, 1)
	require.Equal(t, int64(40), rows[0].Clicks)
	require.Equal(t, int64(400), rows[0].Impressions)
	require.InDelta(t, 0.10, rows[0].CTR, 1e-9)
	require.InDelta(t, 5.0, rows[0].Position, 1e-9)
	require.Nil(t, rows[0].Hour)
	require.Equal(t, search.DefaultSearchType, rows[0].SearchType)
}

func TestAggregateDayZeroImpressionsAvoidsDivideByZero(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	repo.addHourly(7, testDay, 0, "ghost", "/p1", 0, 0, 0, 0)
	repo.addHourly(7, testDay, 1, "ghost", "/p1", 0, 0, 0, 0)

	res := newAggregatorForTest(repo).AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusSuccess, res.Status)

	rows := repo.dailyRows(7, testDay)
	require.Len(t, rows, 1)
	require.Zero(t, rows[0].CTR)
	require.Zero(t, rows[0].Position)
}

func TestAggregateDayEndToEndScenario(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	repo.addHourly(7, testDay, 0, "shoes", "/p1", 1, 10, 0.1, 3.0)
	repo.addHourly(7, testDay, 12, "shoes", "/p1", 4, 40, 0.1, 1.0)

	res := newAggregatorForTest(repo).AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusSuccess, res.Status)

	rows := repo.dailyRows(7, testDay)
	require.Len(t, rows, 1)
	require.Equal(t, int64(5), rows[0].Clicks)
	require.Equal(t, int64(50), rows[0].Impressions)
	require.InDelta(t, 0.1, rows[0].CTR, 1e-9)
	require.InDelta(t, 1.4, rows[0].Position, 1e-9)
}

func TestAggregateDayGroupsByDimensions(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	repo.addHourly(7, testDay, 1, "shoes", "/p1", 1, 10, 0.1, 2.0)
	repo.addHourly(7, testDay, 2, "shoes", "/p2", 2, 20, 0.1, 3.0)
	repo.addHourly(7, testDay, 3, "boots", "/p1", 3, 30, 0.1, 4.0)

	res := newAggregatorForTest(repo).AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, 3, res.DailyRows)

	rows := repo.dailyRows(7, testDay)
	// Deterministic ordering: sorted by query, then page.
	require.Equal(t, "boots", rows[0].Query)
	require.Equal(t, "shoes", rows[1].Query)
	require.Equal(t, "/p1", rows[1].Page)
	require.Equal(t, "shoes", rows[2].Query)
	require.Equal(t, "/p2", rows[2].Page)
}

func TestAggregateDaySkipsWhenAlreadyAggregated(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	repo.addHourly(7, testDay, 0, "shoes", "/p1", 1, 10, 0.1, 2.0)
	agg := newAggregatorForTest(repo)

	first := agg.AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusSuccess, first.Status)
	before := repo.dailyRows(7, testDay)

	second := agg.AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusSkipped, second.Status)
	require.Zero(t, second.HourlyRows)
	require.Equal(t, before, repo.dailyRows(7, testDay))
}

func TestAggregateDayOverwriteReplacesStaleGroups(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	repo.addHourly(7, testDay, 0, "shoes", "/p1", 1, 10, 0.1, 2.0)
	repo.addHourly(7, testDay, 0, "vanished", "/p9", 9, 90, 0.1, 9.0)
	agg := newAggregatorForTest(repo)

	first := agg.AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusSuccess, first.Status)
	require.Len(t, repo.dailyRows(7, testDay), 2)

	// The "vanished" query's hourly rows disappear; a forced re-run must
	// leave exactly the groups present in the current hourly data.
	repo.mu.Lock()
	k := dayKey(7, testDay)
	var kept []search.PerformanceRecord
	for _, r := range repo.hourly[k] {
		if r.Query != "vanished" {
			kept = append(kept, r)
		}
	}
	repo.hourly[k] = kept
	repo.mu.Unlock()

	second := agg.AggregateDay(context.Background(), 7, testDay, true)
	require.Equal(t, StatusSuccess, second.Status)
	rows := repo.dailyRows(7, testDay)
	require.Len(t, rows, 1)
	require.Equal(t, "shoes", rows[0].Query)
}

func TestAggregateDayNoData(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	res := newAggregatorForTest(repo).AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusNoData, res.Status)
	require.Empty(t, repo.dailyRows(7, testDay))
}

func TestAggregateDayCapturesStorageErrors(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	repo.addHourly(7, testDay, 0, "shoes", "/p1", 1, 10, 0.1, 2.0)
	repo.failRepl = true

	res := newAggregatorForTest(repo).AggregateDay(context.Background(), 7, testDay, false)
	require.Equal(t, StatusError, res.Status)
	require.Contains(t, res.Error, "storage down")
	require.Empty(t, repo.dailyRows(7, testDay))
}

func TestAggregateRangeCollectsAllOutcomes(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	d1 := testDay
	d2 := testDay.AddDate(0, 0, 1)
	d3 := testDay.AddDate(0, 0, 2)
	repo.addHourly(7, d1, 0, "shoes", "/p1", 1, 10, 0.1, 2.0)
	repo.addHourly(7, d3, 0, "boots", "/p1", 2, 20, 0.1, 3.0)
	agg := newAggregatorForTest(repo)

	// Pre-aggregate d3 so the range run skips it.
	require.Equal(t, StatusSuccess, agg.AggregateDay(context.Background(), 7, d3, false).Status)

	summary, err := agg.AggregateRange(context.Background(), 7, d1, d3, false)
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	require.Equal(t, 1, summary.Success)
	require.Equal(t, 1, summary.NoData)
	require.Equal(t, 1, summary.Skipped)
	require.Zero(t, summary.Failed)
	require.Equal(t, 1, summary.HourlyRows)
	require.Equal(t, 1, summary.DailyRows)
	require.Equal(t, StatusSuccess, summary.Results[0].Status)
	require.Equal(t, StatusNoData, summary.Results[1].Status)
	require.Equal(t, StatusSkipped, summary.Results[2].Status)

	// d2 had nothing to aggregate.
	require.Empty(t, repo.dailyRows(7, d2))
}

func TestAggregateRangeDoesNotShortCircuitOnFailure(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	repo.addHourly(7, testDay, 0, "shoes", "/p1", 1, 10, 0.1, 2.0)
	repo.failList = true

	summary, err := newAggregatorForTest(repo).AggregateRange(
		context.Background(), 7, testDay, testDay.AddDate(0, 0, 1), false)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Results, 2)
}

func TestAggregateRangeRejectsInvertedRange(t *testing.T) {
	t.Parallel()

	repo := newMemPerfRepo()
	_, err := newAggregatorForTest(repo).AggregateRange(
		context.Background(), 7, testDay.AddDate(0, 0, 1), testDay, false)
	require.Error(t, err)
}

func TestFoldOfEmptyInputIsEmpty(t *testing.T) {
	t.Parallel()
	require.Empty(t, Fold(nil))
}
