package status

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/probe"
	"github.com/corebit/corebit-server/internal/repository/inmemory"
)

func TestDebouncedOfflineTransitionScenario(t *testing.T) {
	// Grounded on spec scenario #1: fail, fail, success, fail, fail, fail
	// → unknown→warning, warning→online, online→warning, warning→offline.
	repo := inmemory.New()
	ctx := context.Background()
	engine := New(Thresholds{OfflineThreshold: 3}, time.Second, repo, zerolog.Nop())

	var transitions []models.Status
	engine.OnTransition(func(ctx context.Context, device *models.Device, event models.DeviceStatusEvent) {
		transitions = append(transitions, event.NewStatus)
	})

	device := &models.Device{ID: "d1", Kind: models.KindGenericPing}

	outcomes := []bool{false, false, true, false, false, false}
	for _, ok := range outcomes {
		engine.HandleSample(ctx, device, probe.Sample{Success: ok})
	}

	require.Len(t, transitions, 4)
	assert.Equal(t, []models.Status{
		models.StatusWarning,
		models.StatusOnline,
		models.StatusWarning,
		models.StatusOffline,
	}, transitions)
}

func TestOfflineToOnlineIsImmediate(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	engine := New(Thresholds{OfflineThreshold: 2}, time.Second, repo, zerolog.Nop())
	device := &models.Device{ID: "d1"}

	engine.HandleSample(ctx, device, probe.Sample{Success: false})
	engine.HandleSample(ctx, device, probe.Sample{Success: false})
	assert.Equal(t, models.StatusOffline, device.Status)

	engine.HandleSample(ctx, device, probe.Sample{Success: true})
	assert.Equal(t, models.StatusOnline, device.Status)
}

func TestSweepMarksStaleAfterThreshold(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	engine := New(Thresholds{StaleAge: time.Millisecond}, time.Second, repo, zerolog.Nop())
	device := &models.Device{ID: "d1"}

	engine.HandleSample(ctx, device, probe.Sample{Success: true})
	time.Sleep(5 * time.Millisecond)

	engine.Sweep(ctx, []*models.Device{device})
	assert.Equal(t, models.StatusStale, device.Status)
}

func TestSuccessfulSampleAppendsMetricsHistory(t *testing.T) {
	repo := inmemory.New()
	ctx := context.Background()
	engine := New(Thresholds{}, time.Second, repo, zerolog.Nop())
	device := &models.Device{ID: "d1"}

	engine.HandleSample(ctx, device, probe.Sample{Success: true, CPUPercent: 42})

	rows, err := repo.AggregatedMetricsHistory(ctx, "d1", time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 42.0, rows[0].CPUPercent)
}
