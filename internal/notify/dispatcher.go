// Package notify implements the Notification Dispatcher (C5): it resolves a
// device's subscriptions (direct plus on-duty), filters by active mutes,
// renders each surviving notification's message template, and delivers it
// over HTTP with bounded retry, recording the outcome in history.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository"
)

// retryDelays are the fixed exponential backoff steps from spec §4.5 step 5,
// which caps delivery at "up to 3 attempts" total: one initial send plus
// these two retries.
var retryDelays = []time.Duration{time.Second, 2 * time.Second}

// deliveryRateLimit caps outbound webhook calls across all notifications so
// a storm of simultaneous device transitions can't hammer a shared endpoint
// (e.g. a chat gateway) into rate-limiting every other integration too.
const deliveryRateLimit = 50

type Dispatcher struct {
	repo       repository.NotificationRepository
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger

	// NotifyOnWarning controls whether a transition *into* warning dispatches
	// notifications. Spec §9 open question: the source is inconsistent here;
	// this defaults to false (a flapping link stays quiet until it actually
	// goes offline) and is exposed as a dispatcher-level setting rather than
	// silently resolved.
	NotifyOnWarning bool
}

func New(repo repository.NotificationRepository, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(deliveryRateLimit), deliveryRateLimit),
		log:        log.With().Str("component", "notify").Logger(),
	}
}

// HandleTransition is registered as a status.TransitionListener; it is the
// single entry point driving the whole pipeline for one status event. Spec
// §4.3: "Transitions to offline, or from offline, enqueue work to the
// Notification Dispatcher" — every other transition (online<->warning,
// anything into/out of stale or unknown) stays silent unless it's a
// warning transition and the operator opted into NotifyOnWarning.
func (d *Dispatcher) HandleTransition(ctx context.Context, device *models.Device, event models.DeviceStatusEvent) {
	entersOrLeavesOffline := event.NewStatus == models.StatusOffline || event.PreviousStatus == models.StatusOffline
	warningOptIn := event.NewStatus == models.StatusWarning && d.NotifyOnWarning
	if !entersOrLeavesOffline && !warningOptIn {
		return
	}

	notifications, err := d.resolveSubscriptions(ctx, device)
	if err != nil {
		d.log.Error().Err(err).Str("device", device.ID).Msg("failed to resolve subscriptions")
		return
	}
	if len(notifications) == 0 {
		return
	}

	mutes, err := d.repo.ListAlarmMutes(ctx, time.Now())
	if err != nil {
		d.log.Error().Err(err).Msg("failed to list alarm mutes")
		mutes = nil
	}

	for _, n := range notifications {
		if !n.Enabled {
			continue
		}
		if d.isMuted(mutes, n.OwnerUserID) {
			continue
		}
		message := Render(n.MessageTemplate, device, event)
		d.deliver(ctx, device, n, event, message)
	}
}

// resolveSubscriptions implements spec §4.5 step 1: direct per-device
// subscriptions, plus — when the device opted into on-duty routing — the
// notifications owned by whichever users are on shift right now.
func (d *Dispatcher) resolveSubscriptions(ctx context.Context, device *models.Device) ([]*models.Notification, error) {
	var out []*models.Notification
	seen := map[string]struct{}{}

	subs, err := d.repo.ListSubscriptions(ctx, device.ID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		n, err := d.repo.GetNotification(ctx, sub.NotificationID)
		if err != nil || n == nil {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}

	if device.UseOnDuty {
		shifts, err := d.repo.ListOnDutyShifts(ctx)
		if err != nil {
			return out, err
		}
		users := CurrentShiftUsers(time.Now(), shifts)
		if len(users) > 0 {
			owned, err := d.repo.ListNotificationsForUsers(ctx, users)
			if err != nil {
				return out, err
			}
			for _, n := range owned {
				if _, dup := seen[n.ID]; dup {
					continue
				}
				if n.DeviceNamePattern != "" && !wildcard.Match(n.DeviceNamePattern, device.Name) {
					continue
				}
				seen[n.ID] = struct{}{}
				out = append(out, n)
			}
		}
	}

	return out, nil
}

// isMuted applies spec §4.5 step 2: a mute with no UserID silences every
// recipient; a mute scoped to a user only silences that user's notifications.
func (d *Dispatcher) isMuted(mutes []*models.AlarmMute, ownerUserID string) bool {
	for _, m := range mutes {
		if m.Silences(ownerUserID) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) deliver(ctx context.Context, device *models.Device, n *models.Notification, event models.DeviceStatusEvent, message string) {
	history := models.NotificationHistory{
		ID:             models.NewID(),
		DeviceID:       device.ID,
		NotificationID: n.ID,
		EventID:        event.ID,
		SentAt:         time.Now(),
	}

	for attempt := 1; attempt <= len(retryDelays)+1; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			history.Error = err.Error()
			break
		}
		err := d.send(ctx, n, message)
		history.Attempts = attempt
		if err == nil {
			history.Success = true
			break
		}

		history.Error = err.Error()
		if !isRetryable(err) || attempt > len(retryDelays) {
			break
		}

		delay := models.JitterDuration(retryDelays[attempt-1])
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			history.Error = ctx.Err().Error()
			goto settle
		}
	}

settle:
	if err := d.repo.AppendNotificationHistory(ctx, history); err != nil {
		d.log.Error().Err(err).Str("notification", n.ID).Msg("failed to record notification history")
	}
}

// permanentHTTPError wraps a 4xx response so isRetryable can distinguish it
// from a transient 5xx or network failure.
type permanentHTTPError struct{ status int }

func (e *permanentHTTPError) Error() string { return fmt.Sprintf("permanent failure: status %d", e.status) }

func isRetryable(err error) bool {
	_, permanent := err.(*permanentHTTPError)
	return !permanent
}

func (d *Dispatcher) send(ctx context.Context, n *models.Notification, message string) error {
	var req *http.Request
	var err error

	switch n.Method {
	case models.MethodGET:
		target := n.URL + url.QueryEscape(message)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, n.URL, strings.NewReader(message))
		if err == nil {
			req.Header.Set("Content-Type", "text/plain")
		}
	}
	if err != nil {
		return err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &permanentHTTPError{status: resp.StatusCode}
	default:
		return fmt.Errorf("delivery returned status %d", resp.StatusCode)
	}
}
