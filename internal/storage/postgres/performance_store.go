package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/seolens/searchsync/internal/search"
)

// PerformanceStore implements store.PerformanceRepository on Postgres.
type PerformanceStore struct {
	db DB
}

// NewPerformanceStore constructs a PerformanceStore on an existing pool.
func NewPerformanceStore(db DB) (*PerformanceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &PerformanceStore{db: db}, nil
}

const (
	hourlyTable = "performance_hourly"
	dailyTable  = "performance_daily"
)

// UpsertHourly writes hourly rows for one (site, date) under the given mode.
func (s *PerformanceStore) UpsertHourly(
	ctx context.Context,
	siteID int64,
	date time.Time,
	rows []search.PerformanceRecord,
	mode search.UpsertMode,
) (int64, error) {
	return s.upsert(ctx, hourlyTable, siteID, date, rows, mode)
}

// UpsertDaily writes daily rows for one (site, date) under the given mode.
func (s *PerformanceStore) UpsertDaily(
	ctx context.Context,
	siteID int64,
	date time.Time,
	rows []search.PerformanceRecord,
	mode search.UpsertMode,
) (int64, error) {
	return s.upsert(ctx, dailyTable, siteID, date, rows, mode)
}

// upsert runs the delete (overwrite mode only) and the inserts in one
// transaction, so a day's batch is atomic relative to readers.
func (s *PerformanceStore) upsert(
	ctx context.Context,
	table string,
	siteID int64,
	date time.Time,
	rows []search.PerformanceRecord,
	mode search.UpsertMode,
) (int64, error) {
	if !mode.Valid() {
		return 0, fmt.Errorf("invalid upsert mode %q", mode)
	}
	day := search.Day(date)
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if mode == search.ModeOverwrite {
		del := fmt.Sprintf(`DELETE FROM %s WHERE site_id = $1 AND date = $2`, table)
		if _, err := tx.Exec(ctx, del, siteID, day); err != nil {
			return 0, fmt.Errorf("delete %s rows: %w", table, err)
		}
	}

	var written int64
	for _, r := range rows {
		tag, err := s.insertRow(ctx, tx, table, siteID, day, r)
		if err != nil {
			return 0, err
		}
		written += tag
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert tx: %w", err)
	}
	return written, nil
}

func (s *PerformanceStore) insertRow(
	ctx context.Context,
	tx pgx.Tx,
	table string,
	siteID int64,
	day time.Time,
	r search.PerformanceRecord,
) (int64, error) {
	if table == hourlyTable {
		if r.Hour == nil {
			return 0, fmt.Errorf("hourly row for %q is missing hour", r.Query)
		}
		query := fmt.Sprintf(`
			INSERT INTO %s (site_id, date, hour, query, page, device, country, search_type,
				clicks, impressions, ctr, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (site_id, date, hour, query, page, device, country, search_type) DO NOTHING`,
			table)
		tag, err := tx.Exec(ctx, query,
			siteID, day, *r.Hour, r.Query, r.Page, r.Device, r.Country, r.SearchType,
			r.Clicks, r.Impressions, r.CTR, r.Position)
		if err != nil {
			return 0, fmt.Errorf("insert hourly row: %w", err)
		}
		return tag.RowsAffected(), nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (site_id, date, query, page, device, country, search_type,
			clicks, impressions, ctr, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (site_id, date, query, page, device, country, search_type) DO NOTHING`,
		table)
	tag, err := tx.Exec(ctx, query,
		siteID, day, r.Query, r.Page, r.Device, r.Country, r.SearchType,
		r.Clicks, r.Impressions, r.CTR, r.Position)
	if err != nil {
		return 0, fmt.Errorf("insert daily row: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListHourly returns all hourly rows for the (site, date).
func (s *PerformanceStore) ListHourly(
	ctx context.Context,
	siteID int64,
	date time.Time,
) ([]search.PerformanceRecord, error) {
	query := `
		SELECT site_id, date, hour, query, page, device, country, search_type,
			clicks, impressions, ctr, position
		FROM performance_hourly
		WHERE site_id = $1 AND date = $2
		ORDER BY hour, query, page;
	`
	rows, err := s.db.Query(ctx, query, siteID, search.Day(date))
	if err != nil {
		return nil, fmt.Errorf("list hourly rows: %w", err)
	}
	defer rows.Close()

	var out []search.PerformanceRecord
	for rows.Next() {
		var r search.PerformanceRecord
		var hour int
		err := rows.Scan(
			&r.SiteID,
			&r.Date,
			&hour,
			&r.Query,
			&r.Page,
			&r.Device,
			&r.Country,
			&r.SearchType,
			&r.Clicks,
			&r.Impressions,
			&r.CTR,
			&r.Position,
		)
		if err != nil {
			return nil, fmt.Errorf("scan hourly row: %w", err)
		}
		r.Hour = &hour
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hourly rows: %w", err)
	}
	return out, nil
}

// HasDaily reports whether any daily row exists for the (site, date).
func (s *PerformanceStore) HasDaily(ctx context.Context, siteID int64, date time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM performance_daily WHERE site_id = $1 AND date = $2);`
	var exists bool
	if err := s.db.QueryRow(ctx, query, siteID, search.Day(date)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check daily rows: %w", err)
	}
	return exists, nil
}

// ReplaceDaily deletes every daily row for the (site, date) and inserts the
// given set in one transaction. Insert-after-delete cannot collide, so plain
// inserts are used; the surrounding transaction still guarantees the batch is
// all-or-nothing.
func (s *PerformanceStore) ReplaceDaily(
	ctx context.Context,
	siteID int64,
	date time.Time,
	rows []search.PerformanceRecord,
) (int64, error) {
	day := search.Day(date)
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM performance_daily WHERE site_id = $1 AND date = $2`, siteID, day); err != nil {
		return 0, fmt.Errorf("delete daily rows: %w", err)
	}
	var written int64
	for _, r := range rows {
		query := `
			INSERT INTO performance_daily (site_id, date, query, page, device, country, search_type,
				clicks, impressions, ctr, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		tag, err := tx.Exec(ctx, query,
			siteID, day, r.Query, r.Page, r.Device, r.Country, r.SearchType,
			r.Clicks, r.Impressions, r.CTR, r.Position)
		if err != nil {
			return 0, fmt.Errorf("insert daily aggregate: %w", err)
		}
		written += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace tx: %w", err)
	}
	return written, nil
}
