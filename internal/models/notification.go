package models

import "time"

// HTTPMethod restricts Notification delivery to the two methods the
// dispatcher knows how to render a message for.
type HTTPMethod string

const (
	MethodGET  HTTPMethod = "GET"
	MethodPOST HTTPMethod = "POST"
)

// Notification is a configured webhook target with a message template.
// OwnerUserID is empty for a notification reachable via a direct
// DeviceNotification subscription; it is set for a personal notification
// that only fires for a device when its owner is on-duty (spec §4.5 step 1).
type Notification struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	Method          HTTPMethod `json:"method"`
	MessageTemplate string     `json:"messageTemplate"`
	Enabled         bool       `json:"enabled"`
	OwnerUserID     string     `json:"ownerUserId,omitempty"`

	// DeviceNamePattern, when set, restricts an on-duty-owned notification
	// (OwnerUserID != "") to devices whose name matches the glob; empty
	// matches every device. Direct DeviceNotification subscriptions are
	// already scoped to one device and ignore this field.
	DeviceNamePattern string `json:"deviceNamePattern,omitempty"`
}

// DeviceNotification subscribes a Device to a global Notification.
type DeviceNotification struct {
	ID             string `json:"id"`
	DeviceID       string `json:"deviceId"`
	NotificationID string `json:"notificationId"`
}

// Shift is one of the two recurring on-duty windows in a day.
type Shift string

const (
	ShiftDay   Shift = "day"
	ShiftNight Shift = "night"
)

// OnDutyShift defines when a shift is active and who is on it.
type OnDutyShift struct {
	Shift     Shift    `json:"shift"`
	StartTime string   `json:"startTime"` // "HH:MM"
	EndTime   string   `json:"endTime"`   // "HH:MM"
	Timezone  string   `json:"timezone"`
	UserIDs   []string `json:"userIds"`
}

// AlarmMute silences notifications globally (UserID == "") or for one user,
// until MuteUntil. A nil MuteUntil mutes indefinitely until deleted.
type AlarmMute struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId,omitempty"`
	MutedBy   string     `json:"mutedBy"`
	MuteUntil *time.Time `json:"muteUntil,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Active reports whether the mute currently silences notifications.
func (m *AlarmMute) Active(now time.Time) bool {
	if m == nil {
		return false
	}
	return m.MuteUntil == nil || m.MuteUntil.After(now)
}

// Silences reports whether this mute applies to a notification destined for
// userID ("" for the device-wide/global recipient channel).
func (m *AlarmMute) Silences(userID string) bool {
	return m.UserID == "" || m.UserID == userID
}

// NotificationHistory is a delivery attempt outcome, inserted once the
// dispatcher settles an event (success or permanent failure).
type NotificationHistory struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"deviceId"`
	NotificationID string    `json:"notificationId"`
	EventID        string    `json:"eventId"`
	Success        bool      `json:"success"`
	Attempts       int       `json:"attempts"`
	Error          string    `json:"error,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}
