// Package status implements the debounced device status state machine (C3):
// it turns a stream of probe samples into Device.Status transitions,
// DeviceStatusEvent rows and metrics-history samples, and publishes every
// transition to the Realtime Bus and Notification Dispatcher.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/probe"
	"github.com/corebit/corebit-server/internal/repository"
)

// Thresholds controls the FSM per spec §4.3; zero values fall back to the
// documented defaults.
type Thresholds struct {
	OfflineThreshold int           // N, default 3
	WarningThreshold int           // W, default 1
	StaleAge         time.Duration // S, default 3*interval
}

func (t Thresholds) withDefaults(interval time.Duration) Thresholds {
	if t.OfflineThreshold <= 0 {
		t.OfflineThreshold = 3
	}
	if t.WarningThreshold <= 0 {
		t.WarningThreshold = 1
	}
	if t.StaleAge <= 0 {
		t.StaleAge = 3 * interval
	}
	return t
}

// TransitionListener is notified synchronously after every status change,
// after the event is recorded in the repository — used to fan out to the Realtime Bus (C7)
// and Notification Dispatcher (C5).
type TransitionListener func(ctx context.Context, device *models.Device, event models.DeviceStatusEvent)

// Engine holds one FSM state per device, serialised behind a per-device lock
// so samples for the same device are never processed out of order even if
// the Scheduler races two probes for it (spec §4.3 "the engine serialises
// its per-device state updates").
type Engine struct {
	thresholds Thresholds
	interval   time.Duration
	repo       repository.HistoryRepository
	listeners  []TransitionListener
	log        zerolog.Logger

	mu     sync.Mutex
	states map[string]*deviceState
}

type deviceState struct {
	mu                  sync.Mutex
	status              models.Status
	consecutiveFailures int
	consecutiveSuccess  int
	lastSampleAt        time.Time
	lastGoodSampleAt    time.Time
}

func New(thresholds Thresholds, interval time.Duration, repo repository.HistoryRepository, log zerolog.Logger) *Engine {
	return &Engine{
		thresholds: thresholds.withDefaults(interval),
		interval:   interval,
		repo:       repo,
		log:        log.With().Str("component", "status").Logger(),
		states:     make(map[string]*deviceState),
	}
}

// OnTransition registers a listener invoked after every status change.
func (e *Engine) OnTransition(l TransitionListener) {
	e.listeners = append(e.listeners, l)
}

func (e *Engine) stateFor(deviceID string) *deviceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[deviceID]
	if !ok {
		st = &deviceState{status: models.StatusUnknown}
		e.states[deviceID] = st
	}
	return st
}

// HandleSample implements scheduler.Sink: the single entry point every
// prober result flows through.
func (e *Engine) HandleSample(ctx context.Context, device *models.Device, sample probe.Sample) {
	st := e.stateFor(device.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	prev := st.status
	st.lastSampleAt = now

	var next models.Status
	if sample.Success {
		st.consecutiveSuccess++
		st.consecutiveFailures = 0
		st.lastGoodSampleAt = now
		next = models.StatusOnline
	} else {
		st.consecutiveSuccess = 0
		st.consecutiveFailures++
		next = e.failureStatus(prev, st.consecutiveFailures)
	}

	if next != prev {
		st.status = next
		device.Status = next
		device.LastProbedAt = now
		device.ConsecutiveFailures = st.consecutiveFailures
		device.ConsecutiveSuccess = st.consecutiveSuccess

		event := models.DeviceStatusEvent{
			ID:             models.NewID(),
			DeviceID:       device.ID,
			PreviousStatus: prev,
			NewStatus:      next,
			CreatedAt:      now,
		}
		if sample.Err != nil {
			event.Message = sample.Err.Error()
		}
		e.publish(ctx, device, event)
	} else {
		device.Status = next
		device.LastProbedAt = now
		device.ConsecutiveFailures = st.consecutiveFailures
		device.ConsecutiveSuccess = st.consecutiveSuccess
	}

	if sample.Success {
		e.recordMetrics(ctx, device, sample, now)
	}
}

// failureStatus implements the online→warning→offline ladder; a device that
// was already offline stays offline until a success brings it back
// immediately (spec's "offline, success → online, immediate").
func (e *Engine) failureStatus(prev models.Status, consecutiveFailures int) models.Status {
	if prev == models.StatusOffline {
		return models.StatusOffline
	}
	if consecutiveFailures >= e.thresholds.OfflineThreshold {
		return models.StatusOffline
	}
	return models.StatusWarning
}

// Sweep marks devices stale when no sample has arrived for longer than S,
// called on a timer independent of the probe cycle so a device that stops
// being scheduled (e.g. removed from every map) still ages out of "online".
func (e *Engine) Sweep(ctx context.Context, devices []*models.Device) {
	now := time.Now()
	for _, device := range devices {
		st := e.stateFor(device.ID)
		st.mu.Lock()
		if st.lastSampleAt.IsZero() {
			st.mu.Unlock()
			continue
		}
		if now.Sub(st.lastSampleAt) > e.thresholds.StaleAge && st.status != models.StatusStale {
			prev := st.status
			st.status = models.StatusStale
			device.Status = models.StatusStale
			st.mu.Unlock()

			event := models.DeviceStatusEvent{
				ID:             models.NewID(),
				DeviceID:       device.ID,
				PreviousStatus: prev,
				NewStatus:      models.StatusStale,
				CreatedAt:      now,
				Message:        "no sample received within stale threshold",
			}
			e.publish(ctx, device, event)
			continue
		}
		st.mu.Unlock()
	}
}

func (e *Engine) publish(ctx context.Context, device *models.Device, event models.DeviceStatusEvent) {
	if err := e.repo.RecordStatusEvent(ctx, event); err != nil {
		e.log.Error().Err(err).Str("device", device.ID).Msg("failed to record status event")
	}
	for _, l := range e.listeners {
		l(ctx, device, event)
	}
}

func (e *Engine) recordMetrics(ctx context.Context, device *models.Device, sample probe.Sample, at time.Time) {
	row := models.DeviceMetricsHistory{
		DeviceID:    device.ID,
		CPUPercent:  sample.CPUPercent,
		MemPercent:  sample.MemPercent,
		DiskPercent: sample.DiskPercent,
		PingRTT:     sample.RTT,
		Uptime:      sample.Uptime,
		Timestamp:   at,
	}
	if err := e.repo.AppendMetricsSample(ctx, row); err != nil {
		e.log.Error().Err(err).Str("device", device.ID).Msg("failed to append metrics sample")
	}
}
