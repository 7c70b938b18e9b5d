// Package pipeline composes the Status Engine (C3), Link-counter
// Differencer (C4) and Dynamic Connection Resolver (C8) into the single
// scheduler.Sink the Scheduler (C1) dispatches every probe Sample to.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/corebit/corebit-server/internal/linkstats"
	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/probe"
	"github.com/corebit/corebit-server/internal/repository"
	"github.com/corebit/corebit-server/internal/resolver"
	"github.com/corebit/corebit-server/internal/status"
)

// Sink fans a Sample out to every per-sample consumer in the system.
type Sink struct {
	repo        repository.Repository
	statusEngine *status.Engine
	differencer *linkstats.Differencer
	resolver    *resolver.Resolver
	log         zerolog.Logger
}

func NewSink(repo repository.Repository, statusEngine *status.Engine, differencer *linkstats.Differencer, res *resolver.Resolver, log zerolog.Logger) *Sink {
	return &Sink{
		repo:         repo,
		statusEngine: statusEngine,
		differencer:  differencer,
		resolver:     res,
		log:          log.With().Str("component", "pipeline").Logger(),
	}
}

// HandleSample implements scheduler.Sink.
func (s *Sink) HandleSample(ctx context.Context, device *models.Device, sample probe.Sample) {
	s.statusEngine.HandleSample(ctx, device, sample)

	if sample.Success && sample.ProxmoxNode != nil {
		s.handleProxmox(ctx, device, sample)
	}

	if sample.Success && sample.CounterBits > 0 {
		s.handleLinkStats(ctx, device, sample)
	}
}

func (s *Sink) handleProxmox(ctx context.Context, device *models.Device, sample probe.Sample) {
	if err := s.repo.SetProxmoxVMs(ctx, device.ID, sample.ProxmoxVms); err != nil {
		s.log.Warn().Err(err).Str("device_id", device.ID).Msg("failed to persist proxmox guest inventory")
		return
	}
	s.resolver.Observe(ctx, sample.ProxmoxVms)
}

// handleLinkStats feeds the Differencer for every Connection touching this
// device whose monitored end matches the side that just reported counters.
func (s *Sink) handleLinkStats(ctx context.Context, device *models.Device, sample probe.Sample) {
	conns, err := connectionsForDevice(ctx, s.repo, device.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("device_id", device.ID).Msg("failed to list connections for device")
		return
	}

	now := time.Now()
	for _, conn := range conns {
		if !monitoredEndMatches(conn, device.ID) {
			continue
		}
		s.differencer.Observe(ctx, conn, sample.InOctets, sample.OutOctets, sample.CounterBits, now)
	}
}

func monitoredEndMatches(conn *models.Connection, deviceID string) bool {
	switch conn.MonitorInterface {
	case models.MonitoredSource:
		return conn.SourceID == deviceID
	case models.MonitoredTarget:
		return conn.TargetID == deviceID
	default:
		return false
	}
}

func connectionsForDevice(ctx context.Context, repo repository.Repository, deviceID string) ([]*models.Connection, error) {
	maps, err := repo.ListMaps(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.Connection
	for _, m := range maps {
		conns, err := repo.ListConnections(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range conns {
			if c.SourceID == deviceID || c.TargetID == deviceID {
				out = append(out, c)
			}
		}
	}
	return out, nil
}
