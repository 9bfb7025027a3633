package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/chunk_transfer/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *InstrumentedTransferRepository {
	t.Helper()

	db, err := InitDB(context.Background(), filepath.Join(t.TempDir(), "transfers.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return NewInstrumentedTransferRepository(db, nil)
}

func TestTransferRepository_RoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := storage.TransferRecord{
		SessionID:  "up-1",
		Name:       "movie.mkv",
		Direction:  "upload",
		Protocol:   "multipart",
		Status:     storage.StatusSucceeded,
		Size:       12 * 1024 * 1024,
		Parts:      3,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}

	require.NoError(t, repo.TrackTransfer(ctx, rec))

	failed := rec
	failed.Name = "broken.bin"
	failed.Status = storage.StatusFailed
	failed.Reason = "chunk 1 failed after 3 attempts: HTTP 500"
	failed.FinishedAt = started.Add(2 * time.Minute)

	require.NoError(t, repo.TrackTransfer(ctx, failed))

	got, err := repo.GetTransfers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "broken.bin", got[0].Name, "newest first")
	assert.Equal(t, failed.Reason, got[0].Reason)

	assert.NotEmpty(t, got[1].ID)
	assert.Equal(t, storage.InstanceID(), got[1].InstanceID)
	assert.Equal(t, "up-1", got[1].SessionID)
	assert.Equal(t, int64(12*1024*1024), got[1].Size)
	assert.Equal(t, 3, got[1].Parts)
	assert.True(t, started.Equal(got[1].StartedAt))
	assert.Equal(t, 90*time.Second, got[1].Duration())

	limited, err := repo.GetTransfers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTransferRepository_DeleteFinishedBefore(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{time.Hour, 48 * time.Hour, 72 * time.Hour} {
		require.NoError(t, repo.TrackTransfer(ctx, storage.TransferRecord{
			Name:       []string{"a", "b", "c"}[i],
			Direction:  "download",
			Status:     storage.StatusSucceeded,
			StartedAt:  now.Add(-age),
			FinishedAt: now.Add(-age),
		}))
	}

	deleted, err := repo.DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	got, err := repo.GetTransfers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)
}
