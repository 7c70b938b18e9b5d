// Package linkstats implements the Link-counter Differencer (C4): it turns
// successive raw interface-octet counters into bits/sec and utilisation,
// handling 32/64-bit counter wrap and stale-gap detection per spec §4.4.
package linkstats

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository"
)

// Config carries the tunables the Differencer needs beyond what's on the
// Connection itself.
type Config struct {
	StaleGap time.Duration // zero disables stale-gap detection; the server passes 3*interval
}

// Differencer holds the last counter sample per connection, serialised
// behind a per-connection lock so overlapping probes for the two endpoints
// of a connection never race the same running state.
type Differencer struct {
	cfg  Config
	repo repository.ConnectionRepository
	log  zerolog.Logger

	mu    sync.Mutex
	state map[string]*connState
}

type connState struct {
	mu         sync.Mutex
	prevIn     uint64
	prevOut    uint64
	prevAt     time.Time
	hasPrev    bool
}

func New(cfg Config, repo repository.ConnectionRepository, log zerolog.Logger) *Differencer {
	return &Differencer{
		cfg:   cfg,
		repo:  repo,
		log:   log.With().Str("component", "linkstats").Logger(),
		state: make(map[string]*connState),
	}
}

func (d *Differencer) stateFor(connID string) *connState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.state[connID]
	if !ok {
		st = &connState{}
		d.state[connID] = st
	}
	return st
}

// Observe feeds one new counter reading for a monitored connection. counterBits
// is 32 or 64, whichever width the owning prober reported the counters in.
func (d *Differencer) Observe(ctx context.Context, conn *models.Connection, in, out uint64, counterBits int, at time.Time) {
	if conn.MonitorInterface == "" {
		return
	}

	st := d.stateFor(conn.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.hasPrev {
		st.prevIn, st.prevOut, st.prevAt, st.hasPrev = in, out, at, true
		return
	}

	staleGap := d.cfg.StaleGap
	elapsed := at.Sub(st.prevAt)
	if staleGap > 0 && elapsed > staleGap {
		d.persist(ctx, conn, models.LinkStats{IsStale: true, SampledAt: at})
		st.prevIn, st.prevOut, st.prevAt = in, out, at
		return
	}
	if elapsed <= 0 {
		return
	}

	capacity := conn.LinkSpeed.BitsPerSec()
	inDelta, inPlausible := counterDelta(st.prevIn, in, counterBits, capacity, elapsed)
	outDelta, outPlausible := counterDelta(st.prevOut, out, counterBits, capacity, elapsed)
	if !inPlausible || !outPlausible {
		// spec §9 open question 2: cur < prev can't be distinguished from a
		// device reboot resetting its counters; treat an implausibly large
		// reconstructed wrap delta as a reset and replace without emitting.
		st.prevIn, st.prevOut, st.prevAt = in, out, at
		return
	}

	seconds := elapsed.Seconds()
	inBps := float64(inDelta) * 8 / seconds
	outBps := float64(outDelta) * 8 / seconds

	utilisation := 0.0
	if capacity > 0 {
		utilisation = 100 * math.Max(inBps, outBps) / capacity
		if utilisation > 100 {
			d.log.Warn().Str("connection", conn.ID).Float64("utilisation", utilisation).Msg("computed utilisation exceeds link capacity, clamping")
			utilisation = 100
		}
	}

	stats := models.LinkStats{
		InBitsPerSec:  inBps,
		OutBitsPerSec: outBps,
		Utilisation:   utilisation,
		IsStale:       false,
		SampledAt:     at,
	}
	d.persist(ctx, conn, stats)

	st.prevIn, st.prevOut, st.prevAt = in, out, at
}

// counterDelta computes the forward delta between two readings of a
// monotonic counter of the given bit width. When cur < prev it reconstructs
// the delta assuming a wrap at 2^bits, but only accepts that reconstruction
// as plausible if it implies a rate under 10x the link's rated speed for the
// elapsed interval (spec §9 open question 2) — a genuine wrap at line rate
// fits comfortably under that bound, while a counter reset from a reboot
// typically does not. capacityBps <= 0 (unknown link speed) always counts
// as plausible, since there is nothing to bound against.
func counterDelta(prev, cur uint64, bits int, capacityBps float64, elapsed time.Duration) (uint64, bool) {
	if cur >= prev {
		return cur - prev, true
	}
	if bits != 32 && bits != 64 {
		bits = 32
	}
	var max uint64
	if bits == 64 {
		max = math.MaxUint64
	} else {
		max = math.MaxUint32
	}
	delta := (max - prev) + cur + 1
	if capacityBps <= 0 {
		return delta, true
	}
	bound := 10 * capacityBps * elapsed.Seconds() / 8
	if float64(delta) < bound {
		return delta, true
	}
	return delta, false
}

func (d *Differencer) persist(ctx context.Context, conn *models.Connection, stats models.LinkStats) {
	conn.LinkStats = stats
	if err := d.repo.UpsertConnection(ctx, conn); err != nil {
		d.log.Error().Err(err).Str("connection", conn.ID).Msg("failed to persist link stats")
		return
	}
	if err := d.repo.AppendBandwidthHistory(ctx, models.ConnectionBandwidthHistory{
		ConnectionID:  conn.ID,
		InBitsPerSec:  stats.InBitsPerSec,
		OutBitsPerSec: stats.OutBitsPerSec,
		Utilisation:   stats.Utilisation,
		Timestamp:     stats.SampledAt,
	}); err != nil {
		d.log.Error().Err(err).Str("connection", conn.ID).Msg("failed to append bandwidth history")
	}
}
