// Package repository defines the persistence contract every other CoreBit
// component depends on. The relational store itself is an external
// collaborator (spec §1 Non-goals); this package only names the operations
// C1–C9 need, so any typed store (SQL, embedded KV, or the in-memory
// reference implementation under ./inmemory used by tests) can back it.
package repository

import (
	"context"
	"time"

	"github.com/corebit/corebit-server/internal/models"
)

// Repository is the full set of operations consumed by the core. All methods
// must be safe for concurrent use.
type Repository interface {
	DeviceRepository
	MapRepository
	ConnectionRepository
	CredentialRepository
	HistoryRepository
	NotificationRepository
	LicenseRepository
	RetentionRepository
	SettingsRepository
}

// DeviceRepository covers Device CRUD plus the scheduler's read path.
type DeviceRepository interface {
	ListDevices(ctx context.Context) ([]*models.Device, error)
	// ListProbeableDevices excludes placeholder devices, per §4.1 step 1.
	ListProbeableDevices(ctx context.Context) ([]*models.Device, error)
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	UpsertDevice(ctx context.Context, d *models.Device) error
	DeleteDevice(ctx context.Context, id string) error
	CountDevices(ctx context.Context) (int, error) // excludes placeholders, §3 invariant

	// SetProxmoxVMs replaces the guest inventory most recently reported for
	// a Proxmox host Device; ListProxmoxVMs serves GET
	// /api/devices/{id}/proxmox-vms.
	SetProxmoxVMs(ctx context.Context, hostDeviceID string, vms []models.ProxmoxVm) error
	ListProxmoxVMs(ctx context.Context, hostDeviceID string) ([]models.ProxmoxVm, error)
}

// MapRepository covers Map and DevicePlacement CRUD.
type MapRepository interface {
	ListMaps(ctx context.Context) ([]*models.Map, error)
	GetMap(ctx context.Context, id string) (*models.Map, error)
	UpsertMap(ctx context.Context, m *models.Map) error
	DeleteMap(ctx context.Context, id string) error // cascades placements/connections

	ListPlacements(ctx context.Context, mapID string) ([]*models.DevicePlacement, error)
	UpsertPlacement(ctx context.Context, p *models.DevicePlacement) error
	DeletePlacementsForDevice(ctx context.Context, deviceID string) error
}

// ConnectionRepository covers Connection CRUD and the bandwidth history
// feeding the Link-counter Differencer (C4).
type ConnectionRepository interface {
	ListConnections(ctx context.Context, mapID string) ([]*models.Connection, error)
	ListDynamicConnections(ctx context.Context) ([]*models.Connection, error)
	GetConnection(ctx context.Context, id string) (*models.Connection, error)
	UpsertConnection(ctx context.Context, c *models.Connection) error
	DeleteConnection(ctx context.Context, id string) error
	DeleteConnectionsForDevice(ctx context.Context, deviceID string) error

	AppendBandwidthHistory(ctx context.Context, h models.ConnectionBandwidthHistory) error
	AggregatedBandwidthHistory(ctx context.Context, connectionID string, since time.Time, maxPoints int) ([]models.ConnectionBandwidthHistory, error)
}

// CredentialRepository covers CredentialProfile CRUD.
type CredentialRepository interface {
	ListCredentialProfiles(ctx context.Context) ([]*models.CredentialProfile, error)
	GetCredentialProfile(ctx context.Context, id string) (*models.CredentialProfile, error)
	UpsertCredentialProfile(ctx context.Context, c *models.CredentialProfile) error
	DeleteCredentialProfile(ctx context.Context, id string) error
}

// HistoryRepository covers the Status Engine's append-only event log and
// derived history reads (C3).
type HistoryRepository interface {
	RecordStatusEvent(ctx context.Context, e models.DeviceStatusEvent) error
	ListStatusEvents(ctx context.Context, deviceID string, since, until time.Time) ([]models.DeviceStatusEvent, error)

	AppendMetricsSample(ctx context.Context, m models.DeviceMetricsHistory) error
	AggregatedMetricsHistory(ctx context.Context, deviceID string, since time.Time, maxPoints int) ([]models.DeviceMetricsHistory, error)

	AppendPrometheusSample(ctx context.Context, m models.PrometheusMetricsHistory) error
}

// NotificationRepository covers everything the Notification Dispatcher (C5)
// reads and writes: subscriptions, shifts, mutes, and delivery history.
type NotificationRepository interface {
	ListNotifications(ctx context.Context) ([]*models.Notification, error)
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	UpsertNotification(ctx context.Context, n *models.Notification) error
	DeleteNotification(ctx context.Context, id string) error

	ListSubscriptions(ctx context.Context, deviceID string) ([]*models.DeviceNotification, error)
	ListNotificationsForUsers(ctx context.Context, userIDs []string) ([]*models.Notification, error)

	ListOnDutyShifts(ctx context.Context) ([]*models.OnDutyShift, error)

	ListAlarmMutes(ctx context.Context, now time.Time) ([]*models.AlarmMute, error)
	CreateAlarmMute(ctx context.Context, m *models.AlarmMute) error
	DeleteAlarmMute(ctx context.Context, id string) error
	ReapExpiredMutes(ctx context.Context, now time.Time) (int, error)

	AppendNotificationHistory(ctx context.Context, h models.NotificationHistory) error
}

// LicenseRepository is consumed by the License Gate (C9).
type LicenseRepository interface {
	LoadLicenseFile(ctx context.Context) (*models.LicenseFile, error)
}

// RetentionRepository backs the hourly retention sweep described in §4.10.
type RetentionRepository interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}

// SettingsRepository backs GET/PUT /api/settings/{key}, letting persisted
// overrides take precedence over the environment-loaded Config.
type SettingsRepository interface {
	ListSettings(ctx context.Context) (map[string]string, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}
