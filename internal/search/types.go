// Package search defines core types shared across subsystems.
package search

import (
	"fmt"
	"time"
)

// SyncType distinguishes the granularity of an ingestion job.
type SyncType string

// Sync types persisted in sync_progress.sync_type.
const (
	SyncDaily  SyncType = "daily"
	SyncHourly SyncType = "hourly"
)

// UpsertMode controls how a row colliding on the natural key is handled.
type UpsertMode string

// Upsert modes accepted by the performance stores.
const (
	// ModeSkip leaves any existing row matching the natural key untouched.
	ModeSkip UpsertMode = "skip"
	// ModeOverwrite replaces existing rows for the affected (site, date).
	ModeOverwrite UpsertMode = "overwrite"
)

// Valid reports whether the mode is one of the accepted values.
func (m UpsertMode) Valid() bool {
	return m == ModeSkip || m == ModeOverwrite
}

// ParseSyncType validates a user-supplied sync type string.
func ParseSyncType(s string) (SyncType, error) {
	switch SyncType(s) {
	case SyncDaily:
		return SyncDaily, nil
	case SyncHourly:
		return SyncHourly, nil
	default:
		return "", fmt.Errorf("invalid sync type %q", s)
	}
}

// Default dimension sentinels used when the upstream source omits a value.
const (
	DefaultDevice     = "ALL"
	DefaultCountry    = "TWN"
	DefaultSearchType = "web"
)

// PerformanceRecord is one raw or aggregated analytics row. Hour is nil for
// daily rows and 0-23 for hourly rows.
type PerformanceRecord struct {
	SiteID      int64
	Date        time.Time
	Hour        *int
	Query       string
	Page        string
	Device      string
	Country     string
	SearchType  string
	Clicks      int64
	Impressions int64
	CTR         float64
	Position    float64
}

// Key returns the natural-key tuple (minus site and date, which callers scope
// by) used for grouping and uniqueness checks.
func (r PerformanceRecord) Key() GroupKey {
	return GroupKey{
		Query:   r.Query,
		Page:    r.Page,
		Device:  r.Device,
		Country: r.Country,
	}
}

// GroupKey identifies one daily aggregate group. Hour is deliberately absent:
// all hourly observations for the same key collapse into one daily row.
type GroupKey struct {
	Query   string
	Page    string
	Device  string
	Country string
}

// Day truncates t to UTC midnight. All dates handled by the pipeline are
// normalized through this helper so comparisons are exact.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Site is a registered property whose analytics are synced.
type Site struct {
	ID        int64
	Property  string
	Label     string
	CreatedAt time.Time
}
