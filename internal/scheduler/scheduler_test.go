package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seolens/searchsync/internal/aggregator"
	"github.com/seolens/searchsync/internal/search"
	"github.com/seolens/searchsync/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type rangeCall struct {
	siteID     int64
	start, end time.Time
}

type fakeAgg struct {
	calls []rangeCall
	fail  map[int64]error
}

func (f *fakeAgg) AggregateRange(_ context.Context, siteID int64, start, end time.Time, _ bool) (aggregator.RangeSummary, error) {
	f.calls = append(f.calls, rangeCall{siteID: siteID, start: start, end: end})
	if err := f.fail[siteID]; err != nil {
		return aggregator.RangeSummary{}, err
	}
	return aggregator.RangeSummary{Success: 1}, nil
}

type fakeSites struct {
	sites []search.Site
	err   error
}

func (f *fakeSites) CreateSite(context.Context, string, string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeSites) GetSite(context.Context, int64) (search.Site, error) {
	return search.Site{}, store.ErrNotFound
}

func (f *fakeSites) ListSites(context.Context) ([]search.Site, error) {
	return f.sites, f.err
}

type fakeProgress struct {
	store.ProgressRepository

	keepFor time.Duration
	removed int64
	err     error
}

func (f *fakeProgress) CleanupOldProgress(_ context.Context, keepFor time.Duration) (int64, error) {
	f.keepFor = keepFor
	return f.removed, f.err
}

func TestRunAggregationCoversAllSites(t *testing.T) {
	agg := &fakeAgg{}
	sites := &fakeSites{sites: []search.Site{
		{ID: 1, Property: "sc-domain:a.com"},
		{ID: 2, Property: "sc-domain:b.com"},
	}}
	clock := fixedClock{now: time.Date(2025, 1, 10, 3, 30, 0, 0, time.UTC)}

	s := New(agg, sites, &fakeProgress{}, clock, Config{AggregateDaysBack: 1}, nil)
	s.RunAggregation(context.Background())

	require.Len(t, agg.calls, 2)
	yesterday := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	for i, call := range agg.calls {
		require.Equal(t, int64(i+1), call.siteID)
		require.Equal(t, yesterday, call.start)
		require.Equal(t, yesterday, call.end)
	}
}

func TestRunAggregationWindow(t *testing.T) {
	agg := &fakeAgg{}
	sites := &fakeSites{sites: []search.Site{{ID: 1}}}
	clock := fixedClock{now: time.Date(2025, 1, 10, 3, 30, 0, 0, time.UTC)}

	s := New(agg, sites, &fakeProgress{}, clock, Config{AggregateDaysBack: 3}, nil)
	s.RunAggregation(context.Background())

	require.Len(t, agg.calls, 1)
	require.Equal(t, time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), agg.calls[0].start)
	require.Equal(t, time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC), agg.calls[0].end)
}

func TestRunAggregationIsolatesSiteFailures(t *testing.T) {
	agg := &fakeAgg{fail: map[int64]error{1: errors.New("boom")}}
	sites := &fakeSites{sites: []search.Site{{ID: 1}, {ID: 2}}}
	clock := fixedClock{now: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)}

	s := New(agg, sites, &fakeProgress{}, clock, Config{}, nil)
	s.RunAggregation(context.Background())

	// site 2 still aggregated despite site 1 failing
	require.Len(t, agg.calls, 2)
}

func TestRunCleanup(t *testing.T) {
	progress := &fakeProgress{removed: 4}
	clock := fixedClock{now: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)}

	s := New(&fakeAgg{}, &fakeSites{}, progress, clock, Config{Retention: 30 * 24 * time.Hour}, nil)
	s.RunCleanup(context.Background())

	require.Equal(t, 30*24*time.Hour, progress.keepFor)
}

func TestStartRejectsBadSpec(t *testing.T) {
	clock := fixedClock{now: time.Now()}
	s := New(&fakeAgg{}, &fakeSites{}, &fakeProgress{}, clock, Config{AggregateSpec: "not a spec"}, nil)
	require.Error(t, s.Start(context.Background()))
}
