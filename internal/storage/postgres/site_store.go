package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/seolens/searchsync/internal/search"
	"github.com/seolens/searchsync/internal/store"
)

// SiteStore implements store.SiteRepository on Postgres.
type SiteStore struct {
	db DB
}

// NewSiteStore constructs a SiteStore on an existing pool.
func NewSiteStore(db DB) (*SiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &SiteStore{db: db}, nil
}

// CreateSite registers a property and returns its ID.
func (s *SiteStore) CreateSite(ctx context.Context, property, label string) (int64, error) {
	if property == "" {
		return 0, fmt.Errorf("property is required")
	}
	query := `
		INSERT INTO sites (property, label)
		VALUES ($1, $2)
		RETURNING id;
	`
	var id int64
	if err := s.db.QueryRow(ctx, query, property, label).Scan(&id); err != nil {
		return 0, fmt.Errorf("create site: %w", err)
	}
	return id, nil
}

// GetSite loads one site or returns store.ErrNotFound.
func (s *SiteStore) GetSite(ctx context.Context, siteID int64) (search.Site, error) {
	query := `SELECT id, property, label, created_at FROM sites WHERE id = $1;`
	var site search.Site
	err := s.db.QueryRow(ctx, query, siteID).Scan(&site.ID, &site.Property, &site.Label, &site.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return search.Site{}, store.ErrNotFound
		}
		return search.Site{}, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

// ListSites returns all registered sites ordered by ID.
func (s *SiteStore) ListSites(ctx context.Context) ([]search.Site, error) {
	query := `SELECT id, property, label, created_at FROM sites ORDER BY id;`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []search.Site
	for rows.Next() {
		var site search.Site
		if err := rows.Scan(&site.ID, &site.Property, &site.Label, &site.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site rows: %w", err)
	}
	return sites, nil
}
