package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateConnectionRejected(t *testing.T) {
	ctx := context.Background()
	s := New()

	c1 := &models.Connection{MapID: "m1", SourceID: "a", TargetID: "b", SourcePort: "e0", TargetPort: "e1"}
	require.NoError(t, s.UpsertConnection(ctx, c1))

	reverse := &models.Connection{MapID: "m1", SourceID: "b", TargetID: "a", SourcePort: "e1", TargetPort: "e0"}
	err := s.UpsertConnection(ctx, reverse)
	assert.ErrorIs(t, err, repository.ErrDuplicateConnection)
}

func TestCascadingDeleteDevice(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertDevice(ctx, &models.Device{ID: "d1", Kind: models.KindGenericPing}))
	require.NoError(t, s.UpsertPlacement(ctx, &models.DevicePlacement{DeviceID: "d1", MapID: "m1"}))
	require.NoError(t, s.UpsertConnection(ctx, &models.Connection{MapID: "m1", SourceID: "d1", TargetID: "d2"}))

	require.NoError(t, s.DeleteDevice(ctx, "d1"))

	placements, _ := s.ListPlacements(ctx, "m1")
	assert.Empty(t, placements)

	conns, _ := s.ListConnections(ctx, "m1")
	assert.Empty(t, conns)
}

func TestCountDevicesExcludesPlaceholders(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertDevice(ctx, &models.Device{ID: "d1", Kind: models.KindServer}))
	require.NoError(t, s.UpsertDevice(ctx, &models.Device{ID: "d2", Kind: models.KindPlaceholder}))

	n, err := s.CountDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReapExpiredMutes(t *testing.T) {
	ctx := context.Background()
	s := New()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateAlarmMute(ctx, &models.AlarmMute{ID: "m1", MuteUntil: &past}))

	n, err := s.ReapExpiredMutes(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mutes, _ := s.ListAlarmMutes(ctx, time.Now())
	assert.Empty(t, mutes)
}

func TestAggregatedMetricsHistoryDownsamples(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 100; i++ {
		require.NoError(t, s.AppendMetricsSample(ctx, models.DeviceMetricsHistory{
			DeviceID:   "d1",
			CPUPercent: float64(i),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	rows, err := s.AggregatedMetricsHistory(ctx, "d1", base.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
}
