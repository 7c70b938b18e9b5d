// Package inmemory is a mutex-guarded, process-local implementation of
// repository.Repository. It exists so the scheduler, status engine,
// dispatcher and scanner can be exercised end-to-end in tests without a real
// database — the relational store itself is an external collaborator the
// core only consumes through the repository.Repository interface.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository"
)

// Store is a concurrency-safe, in-memory repository.Repository.
type Store struct {
	mu sync.RWMutex

	devices     map[string]*models.Device
	maps        map[string]*models.Map
	placements  map[string]*models.DevicePlacement
	connections map[string]*models.Connection
	profiles    map[string]*models.CredentialProfile
	notifs      map[string]*models.Notification
	subs        map[string]*models.DeviceNotification
	shifts      []*models.OnDutyShift
	mutes       map[string]*models.AlarmMute

	statusEvents   []models.DeviceStatusEvent
	metricsHistory []models.DeviceMetricsHistory
	promHistory    []models.PrometheusMetricsHistory
	bwHistory      []models.ConnectionBandwidthHistory
	notifHistory   []models.NotificationHistory

	licenseFile *models.LicenseFile
	settings    map[string]string
	proxmoxVMs  map[string][]models.ProxmoxVm
}

var _ repository.Repository = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		devices:     make(map[string]*models.Device),
		maps:        make(map[string]*models.Map),
		placements:  make(map[string]*models.DevicePlacement),
		connections: make(map[string]*models.Connection),
		profiles:    make(map[string]*models.CredentialProfile),
		notifs:      make(map[string]*models.Notification),
		subs:        make(map[string]*models.DeviceNotification),
		mutes:       make(map[string]*models.AlarmMute),
		settings:    make(map[string]string),
		proxmoxVMs:  make(map[string][]models.ProxmoxVm),
	}
}

// --- Devices ---

func (s *Store) ListDevices(ctx context.Context) ([]*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListProbeableDevices(ctx context.Context) ([]*models.Device, error) {
	all, _ := s.ListDevices(ctx)
	out := all[:0]
	for _, d := range all {
		if !d.Kind.IsPlaceholder() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d.Clone(), nil
}

func (s *Store) UpsertDevice(ctx context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = models.NewID()
	}
	now := time.Now()
	if existing, ok := s.devices[d.ID]; ok {
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	s.devices[d.ID] = d.Clone()
	return nil
}

func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.devices, id)
	s.mu.Unlock()

	_ = s.DeletePlacementsForDevice(ctx, id)
	_ = s.DeleteConnectionsForDevice(ctx, id)
	return nil
}

func (s *Store) CountDevices(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.devices {
		if !d.Kind.IsPlaceholder() {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetProxmoxVMs(ctx context.Context, hostDeviceID string, vms []models.ProxmoxVm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.ProxmoxVm, len(vms))
	copy(cp, vms)
	s.proxmoxVMs[hostDeviceID] = cp
	return nil
}

func (s *Store) ListProxmoxVMs(ctx context.Context, hostDeviceID string) ([]models.ProxmoxVm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.proxmoxVMs[hostDeviceID]
	out := make([]models.ProxmoxVm, len(rows))
	copy(out, rows)
	return out, nil
}

// --- Maps & placements ---

func (s *Store) ListMaps(ctx context.Context) ([]*models.Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Map, 0, len(s.maps))
	for _, m := range s.maps {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetMap(ctx context.Context, id string) (*models.Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.maps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) UpsertMap(ctx context.Context, m *models.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = models.NewID()
	}
	now := time.Now()
	if existing, ok := s.maps[m.ID]; ok {
		m.CreatedAt = existing.CreatedAt
	} else {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	cp := *m
	s.maps[m.ID] = &cp
	return nil
}

func (s *Store) DeleteMap(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.maps, id)
	for pid, p := range s.placements {
		if p.MapID == id {
			delete(s.placements, pid)
		}
	}
	var toDelete []string
	for cid, c := range s.connections {
		if c.MapID == id {
			toDelete = append(toDelete, cid)
		}
	}
	for _, cid := range toDelete {
		delete(s.connections, cid)
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) ListPlacements(ctx context.Context, mapID string) ([]*models.DevicePlacement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DevicePlacement
	for _, p := range s.placements {
		if mapID == "" || p.MapID == mapID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpsertPlacement(ctx context.Context, p *models.DevicePlacement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// (device, map) is unique: overwrite any existing placement for the pair.
	for id, existing := range s.placements {
		if existing.DeviceID == p.DeviceID && existing.MapID == p.MapID {
			p.ID = id
			break
		}
	}
	if p.ID == "" {
		p.ID = models.NewID()
	}
	cp := *p
	s.placements[p.ID] = &cp
	return nil
}

func (s *Store) DeletePlacementsForDevice(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.placements {
		if p.DeviceID == deviceID {
			delete(s.placements, id)
		}
	}
	return nil
}

// --- Connections ---

func (s *Store) ListConnections(ctx context.Context, mapID string) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Connection
	for _, c := range s.connections {
		if mapID == "" || c.MapID == mapID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListDynamicConnections(ctx context.Context) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Connection
	for _, c := range s.connections {
		if c.IsDynamic {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// UpsertConnection enforces the "at most one connection per unordered
// endpoint tuple" invariant for newly created connections.
func (s *Store) UpsertConnection(ctx context.Context, c *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		a, aPort, b, bPort := c.Key()
		for _, existing := range s.connections {
			ea, eaPort, eb, ebPort := existing.Key()
			if a == ea && aPort == eaPort && b == eb && bPort == ebPort {
				return repository.ErrDuplicateConnection
			}
		}
		c.ID = models.NewID()
	}
	now := time.Now()
	if existing, ok := s.connections[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
	return nil
}

func (s *Store) DeleteConnectionsForDevice(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.connections {
		if c.SourceID == deviceID || c.TargetID == deviceID {
			delete(s.connections, id)
		}
	}
	return nil
}

func (s *Store) AppendBandwidthHistory(ctx context.Context, h models.ConnectionBandwidthHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bwHistory = append(s.bwHistory, h)
	return nil
}

func (s *Store) AggregatedBandwidthHistory(ctx context.Context, connectionID string, since time.Time, maxPoints int) ([]models.ConnectionBandwidthHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []models.ConnectionBandwidthHistory
	for _, h := range s.bwHistory {
		if h.ConnectionID == connectionID && !h.Timestamp.Before(since) {
			rows = append(rows, h)
		}
	}
	return downsampleBandwidth(rows, maxPoints), nil
}

// --- Credential profiles ---

func (s *Store) ListCredentialProfiles(ctx context.Context) ([]*models.CredentialProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CredentialProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetCredentialProfile(ctx context.Context, id string) (*models.CredentialProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) UpsertCredentialProfile(ctx context.Context, c *models.CredentialProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = models.NewID()
	}
	cp := *c
	s.profiles[c.ID] = &cp
	return nil
}

func (s *Store) DeleteCredentialProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
	return nil
}

// --- History ---

func (s *Store) RecordStatusEvent(ctx context.Context, e models.DeviceStatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = models.NewID()
	}
	s.statusEvents = append(s.statusEvents, e)
	return nil
}

func (s *Store) ListStatusEvents(ctx context.Context, deviceID string, since, until time.Time) ([]models.DeviceStatusEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DeviceStatusEvent
	for _, e := range s.statusEvents {
		if e.DeviceID != deviceID {
			continue
		}
		if !since.IsZero() && e.CreatedAt.Before(since) {
			continue
		}
		if !until.IsZero() && e.CreatedAt.After(until) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AppendMetricsSample(ctx context.Context, m models.DeviceMetricsHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsHistory = append(s.metricsHistory, m)
	return nil
}

func (s *Store) AggregatedMetricsHistory(ctx context.Context, deviceID string, since time.Time, maxPoints int) ([]models.DeviceMetricsHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []models.DeviceMetricsHistory
	for _, m := range s.metricsHistory {
		if m.DeviceID == deviceID && !m.Timestamp.Before(since) {
			rows = append(rows, m)
		}
	}
	return downsampleMetrics(rows, maxPoints), nil
}

func (s *Store) AppendPrometheusSample(ctx context.Context, m models.PrometheusMetricsHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promHistory = append(s.promHistory, m)
	return nil
}

// --- Notifications ---

func (s *Store) ListNotifications(ctx context.Context) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Notification, 0, len(s.notifs))
	for _, n := range s.notifs {
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *Store) UpsertNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = models.NewID()
	}
	cp := *n
	s.notifs[n.ID] = &cp
	return nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notifs, id)
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, deviceID string) ([]*models.DeviceNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DeviceNotification
	for _, sub := range s.subs {
		if sub.DeviceID == deviceID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

// AddSubscription is a test/seed helper; the HTTP API would expose an upsert
// for DeviceNotification the same way it does for other entities.
func (s *Store) AddSubscription(sub *models.DeviceNotification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = models.NewID()
	}
	cp := *sub
	s.subs[sub.ID] = &cp
}

// ListNotificationsForUsers returns the enabled notifications owned by any of
// userIDs, used by the dispatcher's on-duty resolution step (spec §4.5 step 1).
func (s *Store) ListNotificationsForUsers(ctx context.Context, userIDs []string) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	var out []*models.Notification
	for _, n := range s.notifs {
		if !n.Enabled || n.OwnerUserID == "" {
			continue
		}
		if _, ok := wanted[n.OwnerUserID]; ok {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListOnDutyShifts(ctx context.Context) ([]*models.OnDutyShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.OnDutyShift, len(s.shifts))
	copy(out, s.shifts)
	return out, nil
}

// SetOnDutyShifts is a test/seed helper.
func (s *Store) SetOnDutyShifts(shifts []*models.OnDutyShift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts = shifts
}

func (s *Store) ListAlarmMutes(ctx context.Context, now time.Time) ([]*models.AlarmMute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AlarmMute
	for _, m := range s.mutes {
		if m.Active(now) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) CreateAlarmMute(ctx context.Context, m *models.AlarmMute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = models.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	cp := *m
	s.mutes[m.ID] = &cp
	return nil
}

func (s *Store) DeleteAlarmMute(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mutes, id)
	return nil
}

func (s *Store) ReapExpiredMutes(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.mutes {
		if !m.Active(now) {
			delete(s.mutes, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendNotificationHistory(ctx context.Context, h models.NotificationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = models.NewID()
	}
	s.notifHistory = append(s.notifHistory, h)
	return nil
}

// NotificationHistory exposes recorded deliveries for assertions in tests.
func (s *Store) NotificationHistoryRows() []models.NotificationHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.NotificationHistory, len(s.notifHistory))
	copy(out, s.notifHistory)
	return out
}

// restoreNotificationHistory replaces the in-memory history with rows loaded
// from a HistorySnapshotter's disk snapshot at startup.
func (s *Store) restoreNotificationHistory(rows []models.NotificationHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifHistory = append([]models.NotificationHistory(nil), rows...)
}

// --- License ---

func (s *Store) LoadLicenseFile(ctx context.Context) (*models.LicenseFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.licenseFile == nil {
		return &models.LicenseFile{}, nil
	}
	cp := *s.licenseFile
	return &cp, nil
}

// SetLicenseFile is a test/seed helper.
func (s *Store) SetLicenseFile(lf *models.LicenseFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenseFile = lf
}

// --- Settings ---

func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// --- Retention ---

func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	purged := 0

	keep := s.metricsHistory[:0]
	for _, m := range s.metricsHistory {
		if m.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		keep = append(keep, m)
	}
	s.metricsHistory = keep

	keepBW := s.bwHistory[:0]
	for _, h := range s.bwHistory {
		if h.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		keepBW = append(keepBW, h)
	}
	s.bwHistory = keepBW

	return purged, nil
}
