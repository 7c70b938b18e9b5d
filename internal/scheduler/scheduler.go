// Package scheduler runs the fixed-interval, bounded-concurrency probe loop
// (C1): one goroutine ticks on a fixed schedule and hands each probeable
// device to a worker pool, never accumulating delay across cycles even when
// a cycle overruns its interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/corebit/corebit-server/internal/metrics"
	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/probe"
	"github.com/corebit/corebit-server/internal/repository"
)

// Sink receives the outcome of one device probe. The Status Engine (C3)
// implements this to drive its FSM; tests can supply a channel-backed fake.
type Sink interface {
	HandleSample(ctx context.Context, device *models.Device, sample probe.Sample)
}

// Config controls the loop's pacing and fan-out.
type Config struct {
	Interval       time.Duration // fixed tick, e.g. 30s
	MaxConcurrency int           // bounded worker pool size
	ProbeTimeout   time.Duration // per-device deadline
	ShutdownGrace  time.Duration // time allowed for in-flight probes to drain on Stop
}

// Scheduler owns the ticking goroutine and the per-device in-flight set that
// prevents a slow device from being probed twice concurrently.
type Scheduler struct {
	cfg   Config
	repo  repository.DeviceRepository
	table probe.Table
	sink  Sink
	log   zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	resolveCreds func(ctx context.Context, device *models.Device) map[string]string

	cancel context.CancelFunc
	done   chan struct{}
}

// SetCredentialResolver injects the callback used to look up a device's
// effective credentials (profile merged with device overrides). Without one,
// the scheduler falls back to the device's own CustomCredentials only.
func (s *Scheduler) SetCredentialResolver(fn func(ctx context.Context, device *models.Device) map[string]string) {
	s.resolveCreds = fn
}

func New(cfg Config, repo repository.DeviceRepository, table probe.Table, sink Sink, log zerolog.Logger) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 16
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		repo:     repo,
		table:    table,
		sink:     sink,
		log:      log.With().Str("component", "scheduler").Logger(),
		inFlight: make(map[string]struct{}),
	}
}

// Start launches the tick loop in a background goroutine. It returns
// immediately; call Stop to drain.
func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
}

// run ticks on a fixed schedule (time.Ticker never accumulates drift: a slow
// cycle just means the next tick fires immediately once the timer catches
// up, instead of queuing up missed ticks).
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	devices, err := s.repo.ListProbeableDevices(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list probeable devices failed, skipping cycle")
		return
	}

	start := time.Now()
	defer func() { metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds()) }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for _, device := range devices {
		device := device
		if !s.claim(device.ID) {
			continue
		}
		g.Go(func() error {
			defer s.release(device.ID)
			s.safeProbeOne(gctx, device)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) claim(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[deviceID]; busy {
		return false
	}
	s.inFlight[deviceID] = struct{}{}
	return true
}

func (s *Scheduler) release(deviceID string) {
	s.mu.Lock()
	delete(s.inFlight, deviceID)
	s.mu.Unlock()
}

// safeProbeOne isolates a panicking prober to the worker that ran it (spec
// §4.1/§7): the pool boundary recovers, logs, and moves on rather than
// letting one bad device take down the whole cycle.
func (s *Scheduler) safeProbeOne(ctx context.Context, device *models.Device) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("device", device.ID).Msg("prober panicked, worker isolated")
		}
	}()
	s.probeOne(ctx, device)
}

func (s *Scheduler) probeOne(ctx context.Context, device *models.Device) {
	prober := s.table.For(device.Kind)
	if prober == nil {
		s.log.Warn().Str("device", device.ID).Str("kind", string(device.Kind)).Msg("no prober registered for device kind")
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	metrics.ProbesInFlight.Inc()
	defer metrics.ProbesInFlight.Dec()

	creds := s.credentialsFor(ctx, device)
	sample := prober.Probe(probeCtx, device, creds)

	result := "success"
	if !sample.Success {
		result = "failure"
	}
	metrics.ProberResults.WithLabelValues(string(device.Kind), result).Inc()

	s.sink.HandleSample(ctx, device, sample)
}

// credentialsFor is overridden in production wiring to resolve the device's
// CredentialProfile through the repository; left to the profile-fetch
// closure injected at construction in cmd/corebit so the scheduler itself
// stays free of a CredentialRepository dependency it would otherwise rarely use.
func (s *Scheduler) credentialsFor(ctx context.Context, device *models.Device) map[string]string {
	if s.resolveCreds != nil {
		return s.resolveCreds(ctx, device)
	}
	return device.CustomCredentials
}

// TriggerOnce probes a single device immediately, outside the regular tick,
// used by the API's manual "probe now" action. It respects the same
// in-flight guard as the scheduled path.
func (s *Scheduler) TriggerOnce(ctx context.Context, device *models.Device) {
	if !s.claim(device.ID) {
		return
	}
	defer s.release(device.ID)
	s.safeProbeOne(ctx, device)
}

// Stop cancels the tick loop and blocks until either the in-flight cycle
// finishes or ShutdownGrace elapses, whichever comes first.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()

	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-s.done:
	case <-time.After(grace):
		s.log.Warn().Msg("scheduler shutdown grace period elapsed with probes still in flight")
	}
}
