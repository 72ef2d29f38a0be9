package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchsync/internal/database"
	"watchsync/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc, err := NewService(db)
	require.NoError(t, err)
	return svc
}

func TestServiceRequiresDatabase(t *testing.T) {
	_, err := NewService(nil)
	assert.ErrorIs(t, err, ErrDatabaseRequired)
}

func TestRecordAndRecent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Record(ctx, models.ScrobbleRecord{
		SessionID: "s1", MediaType: "movie", Title: "Heat", Year: 1995,
		TraktID: 77, Outcome: "scrobbled", Progress: 98, RecordedAt: base,
	}))
	require.NoError(t, svc.Record(ctx, models.ScrobbleRecord{
		SessionID: "s2", MediaType: "episode", Title: "Severance", Season: 2, Episode: 5,
		TraktID: 99, Outcome: "notfound", Progress: 10, RecordedAt: base.Add(time.Hour),
	}))

	records, err := svc.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "s2", records[0].SessionID)
	assert.Equal(t, "notfound", records[0].Outcome)
	assert.Equal(t, 2, records[0].Season)
	assert.Equal(t, "s1", records[1].SessionID)
	assert.Equal(t, 77, records[1].TraktID)
	assert.InDelta(t, 98, records[1].Progress, 0.001)
}

func TestRecentRespectsLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, models.ScrobbleRecord{
			SessionID: "s", MediaType: "movie", Title: "Heat", Outcome: "scrobbled",
		}))
	}

	records, err := svc.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestClear(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, models.ScrobbleRecord{
		SessionID: "s1", MediaType: "movie", Title: "Heat", Outcome: "error",
	}))
	require.NoError(t, svc.Clear(ctx))

	records, err := svc.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
