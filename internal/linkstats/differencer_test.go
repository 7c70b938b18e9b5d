package linkstats

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository/inmemory"
)

func baseConn() *models.Connection {
	return &models.Connection{
		ID:               "c1",
		MapID:            "m1",
		MonitorInterface: models.MonitoredSource,
		MonitorSNMPIndex: 1,
		LinkSpeed:        models.LinkSpeed1G,
	}
}

func TestFirstSampleStoresWithoutEmitting(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	require.NoError(t, repo.UpsertConnection(ctx, baseConn()))

	d := New(Config{StaleGap: time.Hour}, repo, zerolog.Nop())
	conn := baseConn()
	d.Observe(ctx, conn, 1000, 2000, 64, time.Now())

	assert.True(t, conn.LinkStats.SampledAt.IsZero())
}

func TestDeltaProducesBitsPerSec(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	require.NoError(t, repo.UpsertConnection(ctx, baseConn()))

	d := New(Config{StaleGap: time.Hour}, repo, zerolog.Nop())
	conn := baseConn()
	t0 := time.Now()
	d.Observe(ctx, conn, 1000, 2000, 64, t0)
	d.Observe(ctx, conn, 1000+125_000_000, 2000, 64, t0.Add(time.Second))

	assert.InDelta(t, 1e9, conn.LinkStats.InBitsPerSec, 1)
	assert.False(t, conn.LinkStats.IsStale)
}

func TestCounterWrap32Bit(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	require.NoError(t, repo.UpsertConnection(ctx, baseConn()))

	d := New(Config{StaleGap: time.Hour}, repo, zerolog.Nop())
	conn := baseConn()
	t0 := time.Now()
	d.Observe(ctx, conn, 4_294_960_000, 0, 32, t0)
	d.Observe(ctx, conn, 1000, 0, 32, t0.Add(time.Second))

	// delta = (2^32 - 4294960000) + 1000 = 7296 + 1000 = 8296 octets, small and positive
	assert.Greater(t, conn.LinkStats.InBitsPerSec, 0.0)
	assert.Less(t, conn.LinkStats.InBitsPerSec, 1e6)
}

func TestStaleGapEmitsStaleAndResets(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	require.NoError(t, repo.UpsertConnection(ctx, baseConn()))

	d := New(Config{StaleGap: time.Second}, repo, zerolog.Nop())
	conn := baseConn()
	t0 := time.Now()
	d.Observe(ctx, conn, 1000, 2000, 64, t0)
	d.Observe(ctx, conn, 2000, 3000, 64, t0.Add(10*time.Second))

	assert.True(t, conn.LinkStats.IsStale)
}

func TestImplausibleWrapTreatedAsRebootReset(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	conn := baseConn()
	conn.LinkSpeed = models.LinkSpeed1G
	require.NoError(t, repo.UpsertConnection(ctx, conn))

	d := New(Config{StaleGap: time.Hour}, repo, zerolog.Nop())
	fresh := baseConn()
	fresh.LinkSpeed = models.LinkSpeed1G
	t0 := time.Now()
	d.Observe(ctx, fresh, 100, 0, 32, t0)
	// cur barely below prev implies a near-full-counter wrap delta, which is
	// wildly implausible for a 1G link over one second — a reboot reset, not
	// a wrap.
	d.Observe(ctx, fresh, 50, 0, 32, t0.Add(time.Second))

	assert.True(t, fresh.LinkStats.SampledAt.IsZero(), "no stats should be emitted on an implausible wrap")
}

func TestUtilisationClampedTo100(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	conn := baseConn()
	conn.LinkSpeed = models.LinkSpeed1G
	require.NoError(t, repo.UpsertConnection(ctx, conn))

	d := New(Config{StaleGap: time.Hour}, repo, zerolog.Nop())
	fresh := baseConn()
	t0 := time.Now()
	d.Observe(ctx, fresh, 0, 0, 64, t0)
	d.Observe(ctx, fresh, 10_000_000_000, 0, 64, t0.Add(time.Second))

	assert.Equal(t, 100.0, fresh.LinkStats.Utilisation)
}
