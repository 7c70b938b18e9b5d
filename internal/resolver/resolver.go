// Package resolver implements the Dynamic Connection Resolver (C8): it
// repoints VM-to-host connections when a Proxmox probe shows a guest has
// migrated to a different node.
package resolver

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository"
)

// Resolver consumes Proxmox probe results and keeps every isDynamic
// Connection pointed at the guest's current host.
type Resolver struct {
	repo repository.Repository
	log  zerolog.Logger
}

func New(repo repository.Repository, log zerolog.Logger) *Resolver {
	return &Resolver{repo: repo, log: log.With().Str("component", "resolver").Logger()}
}

// Observe is called after every successful Proxmox probe with the node
// identity and guest inventory it reported. It recomputes vmid -> host device
// id for that node's guests and repoints any dynamic Connection whose VM now
// lives elsewhere.
func (r *Resolver) Observe(ctx context.Context, vms []models.ProxmoxVm) {
	if len(vms) == 0 {
		return
	}

	vmidToHost := make(map[int]string, len(vms))
	for _, vm := range vms {
		vmidToHost[vm.VMID] = vm.HostDeviceID
	}

	conns, err := r.repo.ListDynamicConnections(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list dynamic connections")
		return
	}

	for _, conn := range conns {
		if conn.DynamicType != models.DynamicProxmoxVMHost || conn.DynamicMetadata == nil {
			continue
		}
		r.resolveOne(ctx, conn, vmidToHost)
	}
}

func (r *Resolver) resolveOne(ctx context.Context, conn *models.Connection, vmidToHost map[int]string) {
	meta := conn.DynamicMetadata

	vmDevice, err := r.repo.GetDevice(ctx, meta.VMDeviceID)
	if err != nil || vmDevice == nil {
		return
	}

	currentHost, ok := vmidToHost[vmDevice.ProxmoxVMID]
	if !ok || currentHost == "" {
		// This probe's node doesn't have the guest; it may have migrated
		// elsewhere or simply not be this node's report to give.
		return
	}

	if currentHost == meta.LastResolvedHostDeviceID {
		return
	}

	previousHost := meta.LastResolvedHostDeviceID

	// MonitoredEnd pins which side of the connection is the VM (spec §4.8:
	// "which endpoint is the VM is pinned by monitoredEnd"); the opposite end
	// is the host, and that's the end we repoint on migration.
	switch meta.MonitoredEnd {
	case models.MonitoredSource:
		conn.TargetID = currentHost
	default:
		conn.SourceID = currentHost
	}
	meta.LastResolvedHostDeviceID = currentHost

	if err := r.repo.UpsertConnection(ctx, conn); err != nil {
		r.log.Warn().Err(err).Str("connection_id", conn.ID).Msg("failed to persist repointed connection")
		return
	}

	r.log.Info().
		Str("connection_id", conn.ID).
		Str("vm_device_id", meta.VMDeviceID).
		Str("from_host", previousHost).
		Str("to_host", currentHost).
		Msg("repointed dynamic connection after proxmox migration")
}
