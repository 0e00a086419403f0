package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petsync/sureflap-sync/pkg/model"
)

func testReplayStores(t *testing.T) map[string]ReplayStore {
	t.Helper()

	sqlite, err := OpenSQLiteReplayStore(filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]ReplayStore{
		"memory": NewMemoryReplayStore(),
		"sqlite": sqlite,
	}
}

func TestReplayStoreCurfewRoundTrip(t *testing.T) {
	for name, rs := range testReplayStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := rs.LastEnabledCurfew(ctx, 2)
			require.NoError(t, err)
			assert.False(t, ok)

			curfew := model.Curfew{
				{Enabled: true, LockTime: "22:00", UnlockTime: "07:00"},
				{Enabled: true, LockTime: "12:00", UnlockTime: "13:00"},
			}
			require.NoError(t, rs.SetLastEnabledCurfew(ctx, 2, curfew))

			got, ok, err := rs.LastEnabledCurfew(ctx, 2)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, curfew.Equal(got))

			// Overwrites replace, not append.
			replacement := model.Curfew{{Enabled: true, LockTime: "20:00", UnlockTime: "06:00"}}
			require.NoError(t, rs.SetLastEnabledCurfew(ctx, 2, replacement))
			got, _, err = rs.LastEnabledCurfew(ctx, 2)
			require.NoError(t, err)
			assert.True(t, replacement.Equal(got))

			// Other devices are untouched.
			_, ok, err = rs.LastEnabledCurfew(ctx, 3)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestReplayStoreFetchOffsets(t *testing.T) {
	for name, rs := range testReplayStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := rs.LastFetch(ctx, "history")
			require.NoError(t, err)
			assert.False(t, ok)

			stamp := time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC)
			require.NoError(t, rs.SetLastFetch(ctx, "history", stamp))

			got, ok, err := rs.LastFetch(ctx, "history")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, stamp.Equal(got))

			later := stamp.Add(time.Minute)
			require.NoError(t, rs.SetLastFetch(ctx, "history", later))
			got, _, err = rs.LastFetch(ctx, "history")
			require.NoError(t, err)
			assert.True(t, later.Equal(got))
		})
	}
}

func TestSQLiteReplayStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.db")
	ctx := context.Background()

	rs, err := OpenSQLiteReplayStore(path)
	require.NoError(t, err)
	curfew := model.Curfew{{Enabled: true, LockTime: "22:00", UnlockTime: "07:00"}}
	require.NoError(t, rs.SetLastEnabledCurfew(ctx, 2, curfew))
	require.NoError(t, rs.Close())

	rs, err = OpenSQLiteReplayStore(path)
	require.NoError(t, err)
	defer rs.Close()

	got, ok, err := rs.LastEnabledCurfew(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, curfew.Equal(got))
}
