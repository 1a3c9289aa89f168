package store

import (
	"context"
	"time"

	"github.com/seolens/searchsync/internal/search"
)

// PerformanceRepository persists raw hourly/daily analytics rows and the
// derived daily aggregates. All writes honor the natural-key uniqueness
// constraint: (site, date, [hour], query, page, device, country, search_type).
type PerformanceRepository interface {
	// UpsertHourly writes hourly rows under the given mode and returns the
	// number of rows persisted. In skip mode, colliding rows are left
	// untouched; in overwrite mode, all existing hourly rows for the
	// (site, date) are deleted first, in the same transaction.
	UpsertHourly(ctx context.Context, siteID int64, date time.Time, rows []search.PerformanceRecord, mode search.UpsertMode) (int64, error)
	// UpsertDaily behaves like UpsertHourly for the daily table.
	UpsertDaily(ctx context.Context, siteID int64, date time.Time, rows []search.PerformanceRecord, mode search.UpsertMode) (int64, error)
	// ListHourly returns all hourly rows for the (site, date), ordered by
	// hour then query.
	ListHourly(ctx context.Context, siteID int64, date time.Time) ([]search.PerformanceRecord, error)
	// HasDaily reports whether any daily row exists for the (site, date).
	HasDaily(ctx context.Context, siteID int64, date time.Time) (bool, error)
	// ReplaceDaily deletes all daily rows for the (site, date) and inserts
	// the given set, atomically. The delete is a no-op when no prior rows
	// exist, so first-time aggregation uses the same path.
	ReplaceDaily(ctx context.Context, siteID int64, date time.Time, rows []search.PerformanceRecord) (int64, error)
}

// SiteRepository manages the registry of synced properties.
type SiteRepository interface {
	// CreateSite registers a property and returns its ID.
	CreateSite(ctx context.Context, property, label string) (int64, error)
	// GetSite loads one site or returns ErrNotFound.
	GetSite(ctx context.Context, siteID int64) (search.Site, error)
	// ListSites returns all registered sites ordered by ID.
	ListSites(ctx context.Context) ([]search.Site, error)
}
