package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSyncType(t *testing.T) {
	st, err := ParseSyncType("daily")
	require.NoError(t, err)
	require.Equal(t, SyncDaily, st)

	st, err = ParseSyncType("hourly")
	require.NoError(t, err)
	require.Equal(t, SyncHourly, st)

	_, err = ParseSyncType("weekly")
	require.Error(t, err)

	_, err = ParseSyncType("")
	require.Error(t, err)
}

func TestUpsertModeValid(t *testing.T) {
	require.True(t, ModeSkip.Valid())
	require.True(t, ModeOverwrite.Valid())
	require.False(t, UpsertMode("merge").Valid())
	require.False(t, UpsertMode("").Valid())
}

func TestDayNormalizesToUTCMidnight(t *testing.T) {
	taipei := time.FixedZone("CST", 8*3600)
	in := time.Date(2025, 1, 5, 3, 30, 0, 0, taipei) // 2025-01-04 19:30 UTC
	require.Equal(t, time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC), Day(in))

	midnight := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	require.Equal(t, midnight, Day(midnight))
}

func TestKeyDropsHour(t *testing.T) {
	h := 7
	a := PerformanceRecord{Query: "q", Page: "p", Device: "ALL", Country: "TWN", Hour: &h}
	b := PerformanceRecord{Query: "q", Page: "p", Device: "ALL", Country: "TWN"}
	require.Equal(t, a.Key(), b.Key())
}
