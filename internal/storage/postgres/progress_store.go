package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/seolens/searchsync/internal/search"
	"github.com/seolens/searchsync/internal/store"
)

// ProgressStore implements store.ProgressRepository on Postgres.
type ProgressStore struct {
	db    DB
	clock search.Clock
}

// NewProgressStore constructs a ProgressStore on an existing pool.
func NewProgressStore(db DB, clock search.Clock) (*ProgressStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &ProgressStore{db: db, clock: clock}, nil
}

const progressColumns = `id, site_id, sync_type, last_completed_date, total_days_requested,
	days_completed, records_synced, started_at, last_updated, completed_at, error`

// StartSync inserts a new progress row and returns its ID.
func (s *ProgressStore) StartSync(
	ctx context.Context,
	siteID int64,
	totalDays int,
	syncType search.SyncType,
) (int64, error) {
	now := s.clock.Now()
	query := `
		INSERT INTO sync_progress (site_id, sync_type, total_days_requested, days_completed,
			records_synced, started_at, last_updated)
		VALUES ($1, $2, $3, 0, 0, $4, $4)
		RETURNING id;
	`
	var id int64
	if err := s.db.QueryRow(ctx, query, siteID, syncType, totalDays, now).Scan(&id); err != nil {
		return 0, fmt.Errorf("start sync: %w", err)
	}
	return id, nil
}

// UpdateProgress records one fully processed day.
func (s *ProgressStore) UpdateProgress(
	ctx context.Context,
	progressID int64,
	lastCompleted time.Time,
	daysCompleted int,
	recordsDelta int64,
) error {
	query := `
		UPDATE sync_progress
		SET last_completed_date = $2,
			days_completed = $3,
			records_synced = records_synced + $4,
			last_updated = $5
		WHERE id = $1;
	`
	tag, err := s.db.Exec(ctx, query, progressID, search.Day(lastCompleted), daysCompleted, recordsDelta, s.clock.Now())
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CompleteSync stamps completed_at and refreshes last_updated.
func (s *ProgressStore) CompleteSync(ctx context.Context, progressID int64) error {
	query := `
		UPDATE sync_progress
		SET completed_at = $2, last_updated = $2
		WHERE id = $1;
	`
	tag, err := s.db.Exec(ctx, query, progressID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("complete sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FailSync records the truncated terminal error without setting completed_at,
// so a failed job stays distinguishable from a successful or in-flight one.
func (s *ProgressStore) FailSync(ctx context.Context, progressID int64, errMsg string) error {
	if len(errMsg) > store.ErrorMessageLimit {
		// Cut on a rune boundary; a mid-rune slice is invalid UTF-8 that
		// Postgres TEXT rejects.
		cut := store.ErrorMessageLimit
		for cut > 0 && !utf8.RuneStart(errMsg[cut]) {
			cut--
		}
		errMsg = errMsg[:cut]
	}
	query := `
		UPDATE sync_progress
		SET error = $2, last_updated = $3
		WHERE id = $1;
	`
	tag, err := s.db.Exec(ctx, query, progressID, errMsg, s.clock.Now())
	if err != nil {
		return fmt.Errorf("fail sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetIncompleteSync returns the most recently started active row for the pair.
func (s *ProgressStore) GetIncompleteSync(
	ctx context.Context,
	siteID int64,
	syncType search.SyncType,
) (store.SyncProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM sync_progress
		WHERE site_id = $1 AND sync_type = $2
			AND completed_at IS NULL AND error IS NULL
		ORDER BY started_at DESC
		LIMIT 1;
	`
	return s.scanOne(s.db.QueryRow(ctx, query, siteID, syncType))
}

// GetSync loads one progress row by ID.
func (s *ProgressStore) GetSync(ctx context.Context, progressID int64) (store.SyncProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM sync_progress
		WHERE id = $1;
	`
	return s.scanOne(s.db.QueryRow(ctx, query, progressID))
}

// CleanupOldProgress deletes completed rows older than the retention window.
func (s *ProgressStore) CleanupOldProgress(ctx context.Context, keepFor time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-keepFor)
	query := `
		DELETE FROM sync_progress
		WHERE completed_at IS NOT NULL AND completed_at < $1;
	`
	tag, err := s.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old progress: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *ProgressStore) scanOne(row pgx.Row) (store.SyncProgress, error) {
	var p store.SyncProgress
	err := row.Scan(
		&p.ID,
		&p.SiteID,
		&p.SyncType,
		&p.LastCompletedDate,
		&p.TotalDaysRequested,
		&p.DaysCompleted,
		&p.RecordsSynced,
		&p.StartedAt,
		&p.LastUpdated,
		&p.CompletedAt,
		&p.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.SyncProgress{}, store.ErrNotFound
		}
		return store.SyncProgress{}, fmt.Errorf("scan sync progress: %w", err)
	}
	return p, nil
}
