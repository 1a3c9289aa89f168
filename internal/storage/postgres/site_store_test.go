package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/seolens/searchsync/internal/store"
)

func newSiteStoreForTest(t *testing.T) (*SiteStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewSiteStore(mock)
	require.NoError(t, err)
	return s, mock
}

func TestCreateSiteReturnsID(t *testing.T) {
	t.Parallel()

	s, mock := newSiteStoreForTest(t)

	mock.ExpectQuery("INSERT INTO sites").
		WithArgs("sc-domain:example.com", "Example").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := s.CreateSite(context.Background(), "sc-domain:example.com", "Example")
	require.NoError(t, err)
	require.Equal(t, int64(3), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSiteRequiresProperty(t *testing.T) {
	t.Parallel()

	s, _ := newSiteStoreForTest(t)
	_, err := s.CreateSite(context.Background(), "", "label")
	require.Error(t, err)
}

func TestGetSiteNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newSiteStoreForTest(t)

	mock.ExpectQuery("SELECT id, property, label, created_at FROM sites").
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSite(context.Background(), 9)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSites(t *testing.T) {
	t.Parallel()

	s, mock := newSiteStoreForTest(t)

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, property, label, created_at FROM sites").
		WillReturnRows(pgxmock.NewRows([]string{"id", "property", "label", "created_at"}).
			AddRow(int64(1), "sc-domain:a.com", "A", created).
			AddRow(int64(2), "sc-domain:b.com", "B", created))

	sites, err := s.ListSites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, "sc-domain:a.com", sites[0].Property)
	require.Equal(t, int64(2), sites[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
