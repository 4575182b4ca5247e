//go:build integration
// +build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPgStoreIntegration exercises pgStore against a real Postgres/PostGIS
// instance. It is excluded from the default build (see the integration
// build tag) and skips unless NOTES_PG_DSN points at a database that
// already has the schema and put_lock/remove_lock functions applied.
func TestPgStoreIntegration(t *testing.T) {
	dsn := os.Getenv("NOTES_PG_DSN")
	if dsn == "" {
		t.Skip("NOTES_PG_DSN not set, skipping store integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	exists, err := s.TablesExist(ctx)
	require.NoError(t, err)
	require.True(t, exists, "expected schema already applied by a prior goose run")

	require.NoError(t, s.InstallCountryLookupStub(ctx))

	ts := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SetWatermark(ctx, ts))
	got, ok, err := s.GetWatermark(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, !got.Before(ts))

	token := "integration-test-lock"
	require.NoError(t, s.AcquireLogicalLock(ctx, token))
	require.NoError(t, s.ReleaseLogicalLock(ctx, token))

	require.NoError(t, s.CreateSyncStaging(ctx, 1))
	defer func() { _ = s.DropSyncStaging(ctx, 1) }()

	summary, err := s.DeduplicateAndUpsert(ctx, 1, false)
	require.NoError(t, err)
	require.Equal(t, 0, summary.NotesUpserted)
}
