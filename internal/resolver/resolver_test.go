package resolver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository/inmemory"
)

func TestObserveRepointsConnectionOnMigration(t *testing.T) {
	ctx := context.Background()
	store := inmemory.New()

	host1 := &models.Device{ID: "host-1", Kind: models.KindProxmox}
	host2 := &models.Device{ID: "host-2", Kind: models.KindProxmox}
	vm := &models.Device{ID: "vm-1", Kind: models.KindServer, ProxmoxVMID: 101}
	require.NoError(t, store.UpsertDevice(ctx, host1))
	require.NoError(t, store.UpsertDevice(ctx, host2))
	require.NoError(t, store.UpsertDevice(ctx, vm))

	conn := &models.Connection{
		ID:          "conn-1",
		MapID:       "map-1",
		SourceID:    "vm-1",
		TargetID:    "host-1",
		IsDynamic:   true,
		DynamicType: models.DynamicProxmoxVMHost,
		DynamicMetadata: &models.DynamicMetadata{
			VMDeviceID:               "vm-1",
			MonitoredEnd:             models.MonitoredSource,
			LastResolvedHostDeviceID: "host-1",
		},
	}
	require.NoError(t, store.UpsertConnection(ctx, conn))

	r := New(store, zerolog.Nop())

	// Probe of host-2 reports the guest now running there.
	r.Observe(ctx, []models.ProxmoxVm{{HostDeviceID: "host-2", VMID: 101, Name: "guest"}})

	updated, err := store.GetConnection(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, "vm-1", updated.SourceID)
	require.Equal(t, "host-2", updated.TargetID)
	require.Equal(t, "host-2", updated.DynamicMetadata.LastResolvedHostDeviceID)
}

func TestObserveIsNoopWhenHostUnchanged(t *testing.T) {
	ctx := context.Background()
	store := inmemory.New()

	host1 := &models.Device{ID: "host-1", Kind: models.KindProxmox}
	vm := &models.Device{ID: "vm-1", Kind: models.KindServer, ProxmoxVMID: 101}
	require.NoError(t, store.UpsertDevice(ctx, host1))
	require.NoError(t, store.UpsertDevice(ctx, vm))

	conn := &models.Connection{
		ID:          "conn-1",
		MapID:       "map-1",
		SourceID:    "vm-1",
		TargetID:    "host-1",
		IsDynamic:   true,
		DynamicType: models.DynamicProxmoxVMHost,
		DynamicMetadata: &models.DynamicMetadata{
			VMDeviceID:               "vm-1",
			MonitoredEnd:             models.MonitoredSource,
			LastResolvedHostDeviceID: "host-1",
		},
	}
	require.NoError(t, store.UpsertConnection(ctx, conn))

	r := New(store, zerolog.Nop())
	r.Observe(ctx, []models.ProxmoxVm{{HostDeviceID: "host-1", VMID: 101}})

	updated, err := store.GetConnection(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, "host-1", updated.TargetID)
}

func TestObserveIgnoresNonDynamicConnections(t *testing.T) {
	ctx := context.Background()
	store := inmemory.New()
	conn := &models.Connection{ID: "conn-1", MapID: "map-1", SourceID: "a", TargetID: "b"}
	require.NoError(t, store.UpsertConnection(ctx, conn))

	r := New(store, zerolog.Nop())
	r.Observe(ctx, []models.ProxmoxVm{{HostDeviceID: "host-2", VMID: 101}})

	updated, err := store.GetConnection(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, "a", updated.SourceID)
}
