package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/probe"
)

type fakeDeviceRepo struct {
	devices []*models.Device
}

func (f *fakeDeviceRepo) ListDevices(ctx context.Context) ([]*models.Device, error) { return f.devices, nil }
func (f *fakeDeviceRepo) ListProbeableDevices(ctx context.Context) ([]*models.Device, error) {
	return f.devices, nil
}
func (f *fakeDeviceRepo) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return nil, nil
}
func (f *fakeDeviceRepo) UpsertDevice(ctx context.Context, d *models.Device) error { return nil }
func (f *fakeDeviceRepo) DeleteDevice(ctx context.Context, id string) error        { return nil }
func (f *fakeDeviceRepo) CountDevices(ctx context.Context) (int, error)            { return len(f.devices), nil }

type slowProber struct {
	delay time.Duration
	calls atomic.Int32
}

func (p *slowProber) Probe(ctx context.Context, device *models.Device, creds map[string]string) probe.Sample {
	p.calls.Add(1)
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
	}
	return probe.Sample{Success: true}
}

type recordingSink struct {
	mu      sync.Mutex
	samples []probe.Sample
}

func (r *recordingSink) HandleSample(ctx context.Context, device *models.Device, sample probe.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func TestSchedulerProbesEachDeviceOnTick(t *testing.T) {
	repo := &fakeDeviceRepo{devices: []*models.Device{
		{ID: "d1", Kind: models.KindGenericPing},
		{ID: "d2", Kind: models.KindGenericPing},
	}}
	prober := &slowProber{delay: time.Millisecond}
	table := probe.Table{models.KindGenericPing: prober}
	sink := &recordingSink{}

	s := New(Config{Interval: 20 * time.Millisecond, MaxConcurrency: 4, ProbeTimeout: time.Second}, repo, table, sink, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return sink.count() >= 2 }, 500*time.Millisecond, 5*time.Millisecond)
}

func TestSchedulerSkipsBusyDevice(t *testing.T) {
	repo := &fakeDeviceRepo{devices: []*models.Device{{ID: "d1", Kind: models.KindGenericPing}}}
	prober := &slowProber{delay: 80 * time.Millisecond}
	table := probe.Table{models.KindGenericPing: prober}
	sink := &recordingSink{}

	s := New(Config{Interval: 10 * time.Millisecond, MaxConcurrency: 4, ProbeTimeout: time.Second}, repo, table, sink, zerolog.Nop())
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.LessOrEqual(t, int(prober.calls.Load()), 2)
}

type panickingProber struct{}

func (panickingProber) Probe(ctx context.Context, device *models.Device, creds map[string]string) probe.Sample {
	panic("boom")
}

func TestPanicInWorkerIsIsolated(t *testing.T) {
	repo := &fakeDeviceRepo{devices: []*models.Device{
		{ID: "d1", Kind: models.KindGenericPing},
		{ID: "d2", Kind: models.KindMikrotikRouter},
	}}
	table := probe.Table{
		models.KindGenericPing:    panickingProber{},
		models.KindMikrotikRouter: &slowProber{delay: time.Millisecond},
	}
	sink := &recordingSink{}

	s := New(Config{Interval: 20 * time.Millisecond, MaxConcurrency: 4, ProbeTimeout: time.Second}, repo, table, sink, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return sink.count() >= 1 }, 500*time.Millisecond, 5*time.Millisecond)
}

func TestTriggerOnceProbesImmediately(t *testing.T) {
	repo := &fakeDeviceRepo{}
	prober := &slowProber{delay: time.Millisecond}
	table := probe.Table{models.KindGenericPing: prober}
	sink := &recordingSink{}

	s := New(Config{Interval: time.Hour, MaxConcurrency: 4}, repo, table, sink, zerolog.Nop())
	s.TriggerOnce(context.Background(), &models.Device{ID: "d1", Kind: models.KindGenericPing})

	assert.Equal(t, 1, sink.count())
}
