// Package store declares interfaces for persisting sync state and analytics rows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/seolens/searchsync/internal/search"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrorMessageLimit caps the persisted failure reason.
const ErrorMessageLimit = 500

// SyncProgress models one row of the sync_progress table: one sync attempt.
type SyncProgress struct {
	// ID is the primary key assigned at StartSync.
	ID int64
	// SiteID identifies the site being synced.
	SiteID int64
	// SyncType is daily or hourly.
	SyncType search.SyncType
	// LastCompletedDate is nil until the first day has been fully ingested.
	LastCompletedDate *time.Time
	// TotalDaysRequested is the span originally asked for.
	TotalDaysRequested int
	// DaysCompleted counts attempted days; monotonically non-decreasing.
	DaysCompleted int
	// RecordsSynced accumulates rows persisted across all days.
	RecordsSynced int64
	// StartedAt is set once at job creation.
	StartedAt time.Time
	// LastUpdated refreshes on every progress write.
	LastUpdated time.Time
	// CompletedAt is nil while the job is in flight or failed.
	CompletedAt *time.Time
	// Error holds the truncated terminal failure reason, if any.
	Error *string
}

// Active reports whether the row represents an in-flight job.
func (p SyncProgress) Active() bool {
	return p.CompletedAt == nil && p.Error == nil
}

// ProgressRepository persists durable sync bookkeeping. Every method performs
// a local database write or read; storage errors propagate to the caller
// because a job cannot proceed without being able to record progress.
type ProgressRepository interface {
	// StartSync inserts a fresh progress row and returns its ID.
	StartSync(ctx context.Context, siteID int64, totalDays int, syncType search.SyncType) (int64, error)
	// UpdateProgress records a fully processed day. daysCompleted is the new
	// cumulative count; recordsDelta is added to the stored total.
	UpdateProgress(ctx context.Context, progressID int64, lastCompleted time.Time, daysCompleted int, recordsDelta int64) error
	// CompleteSync stamps completed_at. Calling it twice is a no-op overwrite.
	CompleteSync(ctx context.Context, progressID int64) error
	// FailSync records the terminal error, truncated to ErrorMessageLimit.
	FailSync(ctx context.Context, progressID int64, errMsg string) error
	// GetIncompleteSync returns the most recently started active row for the
	// (site, type) pair, or ErrNotFound.
	GetIncompleteSync(ctx context.Context, siteID int64, syncType search.SyncType) (SyncProgress, error)
	// GetSync loads one progress row by ID, for status endpoints.
	GetSync(ctx context.Context, progressID int64) (SyncProgress, error)
	// CleanupOldProgress deletes completed rows older than the retention
	// window and returns how many were removed.
	CleanupOldProgress(ctx context.Context, keepFor time.Duration) (int64, error)
}
