package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/probe"
	"github.com/corebit/corebit-server/internal/repository/inmemory"
	"github.com/corebit/corebit-server/internal/status"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	device := &models.Device{Name: "core-sw1", Address: "10.0.0.1", Kind: models.KindMikrotikSwitch}
	event := models.DeviceStatusEvent{PreviousStatus: models.StatusOnline, NewStatus: models.StatusOffline}

	got := Render("[Device.Name] at [Device.Address] went [Status.Old]->[Status.New]", device, event)
	assert.Equal(t, "core-sw1 at 10.0.0.1 went online->offline", got)
}

func TestRenderMissingFieldIsEmpty(t *testing.T) {
	device := &models.Device{Name: "sw1"}
	got := Render("[Device.Identity]-[Device.Name]", device, models.DeviceStatusEvent{})
	assert.Equal(t, "-sw1", got)
}

func TestShiftMembershipStraddlingMidnight(t *testing.T) {
	night := &models.OnDutyShift{Shift: models.ShiftNight, StartTime: "22:00", EndTime: "06:00", Timezone: "UTC", UserIDs: []string{"u1"}}

	at2330 := time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	at0130 := time.Date(2026, 1, 1, 1, 30, 0, 0, time.UTC)
	at1200 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, []string{"u1"}, CurrentShiftUsers(at2330, []*models.OnDutyShift{night}))
	assert.Equal(t, []string{"u1"}, CurrentShiftUsers(at0130, []*models.OnDutyShift{night}))
	assert.Nil(t, CurrentShiftUsers(at1200, []*models.OnDutyShift{night}))
}

func TestGlobalMuteSilencesEveryone(t *testing.T) {
	d := &Dispatcher{}
	mutes := []*models.AlarmMute{{ID: "m1"}}
	assert.True(t, d.isMuted(mutes, "u1"))
	assert.True(t, d.isMuted(mutes, ""))
}

func TestPerUserMuteOnlySilencesThatUser(t *testing.T) {
	d := &Dispatcher{}
	mutes := []*models.AlarmMute{{ID: "m1", UserID: "u1"}}
	assert.True(t, d.isMuted(mutes, "u1"))
	assert.False(t, d.isMuted(mutes, "u2"))
}

func TestDeliverPOSTSucceedsOnFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := inmemory.New()
	ctx := context.Background()
	d := New(repo, zerolog.Nop())

	device := &models.Device{ID: "d1", Name: "dev1"}
	require.NoError(t, repo.UpsertDevice(ctx, device))
	n := &models.Notification{ID: "n1", Enabled: true, URL: server.URL, Method: models.MethodPOST, MessageTemplate: "[Device.Name] down"}
	require.NoError(t, repo.UpsertNotification(ctx, n))
	repo.AddSubscription(&models.DeviceNotification{DeviceID: device.ID, NotificationID: n.ID})

	event := models.DeviceStatusEvent{ID: "e1", NewStatus: models.StatusOffline}
	d.HandleTransition(ctx, device, event)

	assert.Equal(t, int32(1), calls.Load())
}

func Test4xxIsPermanentNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	repo := inmemory.New()
	ctx := context.Background()
	d := New(repo, zerolog.Nop())

	device := &models.Device{ID: "d1", Name: "dev1"}
	require.NoError(t, repo.UpsertDevice(ctx, device))
	n := &models.Notification{ID: "n1", Enabled: true, URL: server.URL + "/", Method: models.MethodGET, MessageTemplate: "down"}
	require.NoError(t, repo.UpsertNotification(ctx, n))
	repo.AddSubscription(&models.DeviceNotification{DeviceID: device.ID, NotificationID: n.ID})

	d.HandleTransition(ctx, device, models.DeviceStatusEvent{ID: "e1", NewStatus: models.StatusOffline})

	assert.Equal(t, int32(1), calls.Load())
}

func TestWarningTransitionDoesNotNotifyByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := inmemory.New()
	ctx := context.Background()
	d := New(repo, zerolog.Nop())

	device := &models.Device{ID: "d1", Name: "dev1"}
	require.NoError(t, repo.UpsertDevice(ctx, device))
	n := &models.Notification{ID: "n1", Enabled: true, URL: server.URL, Method: models.MethodPOST, MessageTemplate: "flapping"}
	require.NoError(t, repo.UpsertNotification(ctx, n))
	repo.AddSubscription(&models.DeviceNotification{DeviceID: device.ID, NotificationID: n.ID})

	d.HandleTransition(ctx, device, models.DeviceStatusEvent{ID: "e1", PreviousStatus: models.StatusOnline, NewStatus: models.StatusWarning})
	assert.Equal(t, int32(0), calls.Load(), "warning transitions are silent unless NotifyOnWarning is opted in")

	d.NotifyOnWarning = true
	d.HandleTransition(ctx, device, models.DeviceStatusEvent{ID: "e2", PreviousStatus: models.StatusOnline, NewStatus: models.StatusWarning})
	assert.Equal(t, int32(1), calls.Load())
}

// TestScenarioOneNotifiesExactlyOnceOnOfflineTransition wires a status.Engine
// to the Dispatcher the same way cmd/corebit/main.go does and replays spec
// scenario #1 (fail, fail, success, fail, fail, fail), which passes through
// unknown->warning, warning->online, online->warning, warning->offline. Only
// the last transition touches offline, so exactly one notification must fire.
func TestScenarioOneNotifiesExactlyOnceOnOfflineTransition(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := inmemory.New()
	ctx := context.Background()

	device := &models.Device{ID: "d1", Name: "dev1"}
	require.NoError(t, repo.UpsertDevice(ctx, device))
	n := &models.Notification{ID: "n1", Enabled: true, URL: server.URL, Method: models.MethodPOST, MessageTemplate: "[Status.Old]->[Status.New]"}
	require.NoError(t, repo.UpsertNotification(ctx, n))
	repo.AddSubscription(&models.DeviceNotification{DeviceID: device.ID, NotificationID: n.ID})

	d := New(repo, zerolog.Nop())
	engine := status.New(status.Thresholds{OfflineThreshold: 3}, time.Second, repo, zerolog.Nop())
	engine.OnTransition(d.HandleTransition)

	outcomes := []bool{false, false, true, false, false, false}
	for _, ok := range outcomes {
		engine.HandleSample(ctx, device, probe.Sample{Success: ok})
	}

	assert.Equal(t, int32(1), calls.Load(), "only the warning->offline transition should notify")
}
