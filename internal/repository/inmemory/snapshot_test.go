package inmemory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/corebit/corebit-server/internal/models"
)

func TestHistorySnapshotterRoundTrips(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := New()
	require.NoError(t, store.AppendNotificationHistory(ctx, models.NotificationHistory{
		DeviceID: "d1", NotificationID: "n1", Success: true, Attempts: 1, SentAt: time.Now(),
	}))

	hs, err := NewHistorySnapshotter(store, dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, hs.save())

	restored := New()
	hs2, err := NewHistorySnapshotter(restored, dir, zerolog.Nop())
	require.NoError(t, err)
	_ = hs2

	rows := restored.NotificationHistoryRows()
	require.Len(t, rows, 1)
	require.Equal(t, "d1", rows[0].DeviceID)
}

func TestHistorySnapshotterMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	store := New()

	_, err := NewHistorySnapshotter(store, filepath.Join(dir, "nested"), zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, store.NotificationHistoryRows())
}
