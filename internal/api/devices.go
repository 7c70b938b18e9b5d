package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/corebit/corebit-server/internal/models"
)

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mapID := r.URL.Query().Get("mapId")
	if mapID == "" {
		devices, err := s.repo.ListDevices(ctx)
		if err != nil {
			writeRepositoryError(s.log, w, err)
			return
		}
		writeJSON(w, http.StatusOK, devices)
		return
	}

	placements, err := s.repo.ListPlacements(ctx, mapID)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	devices := make([]*models.Device, 0, len(placements))
	for _, p := range placements {
		d, err := s.repo.GetDevice(ctx, p.DeviceID)
		if err != nil {
			continue
		}
		devices = append(devices, d)
	}
	writeJSON(w, http.StatusOK, devices)
}

func decodeDevice(r *http.Request) (*models.Device, error) {
	var d models.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, err := decodeDevice(r)
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.gate.CheckCreate(ctx, s.repo, 1); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}

	now := time.Now()
	d.ID = models.NewID()
	d.Status = models.StatusUnknown
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := s.repo.UpsertDevice(ctx, d); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) createDevicesBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var incoming []*models.Device
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(incoming) == 0 {
		writeBadRequest(w, "no devices provided")
		return
	}

	if err := s.gate.CheckCreate(ctx, s.repo, len(incoming)); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}

	now := time.Now()
	created := make([]*models.Device, 0, len(incoming))
	for _, d := range incoming {
		d.ID = models.NewID()
		d.Status = models.StatusUnknown
		d.CreatedAt = now
		d.UpdatedAt = now
		if err := s.repo.UpsertDevice(ctx, d); err != nil {
			writeRepositoryError(s.log, w, err)
			return
		}
		created = append(created, d)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	existing, err := s.repo.GetDevice(ctx, id)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}

	var patch models.Device
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	patch.ID = existing.ID
	patch.CreatedAt = existing.CreatedAt
	patch.UpdatedAt = time.Now()

	if err := s.repo.UpsertDevice(ctx, &patch); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, &patch)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := s.repo.DeleteConnectionsForDevice(ctx, id); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	if err := s.repo.DeletePlacementsForDevice(ctx, id); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	if err := s.repo.DeleteDevice(ctx, id); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deviceMetricsHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since")
		return
	}
	maxPoints := parseMaxPoints(r.URL.Query().Get("maxPoints"))

	rows, err := s.repo.AggregatedMetricsHistory(ctx, id, since, maxPoints)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) deviceStatusEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	since := parseRange(r.URL.Query().Get("range"))
	includeWarnings := r.URL.Query().Get("includeWarnings") == "true"

	events, err := s.repo.ListStatusEvents(ctx, id, since, time.Now())
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	if !includeWarnings {
		filtered := events[:0]
		for _, e := range events {
			if e.NewStatus == models.StatusWarning {
				continue
			}
			filtered = append(filtered, e)
		}
		events = filtered
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) deviceStatusSegments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	start := parseRange(r.URL.Query().Get("range"))
	end := time.Now()

	events, err := s.repo.ListStatusEvents(ctx, id, start, end)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, deriveStatusSegments(events, start, end))
}

// deriveStatusSegments folds an event log into contiguous status intervals
// covering [start, end), per spec §6's "derived segments" status-segments
// endpoint.
func deriveStatusSegments(events []models.DeviceStatusEvent, start, end time.Time) []models.DeviceStatusSegment {
	if len(events) == 0 {
		return []models.DeviceStatusSegment{{Status: models.StatusUnknown, Start: start, End: end}}
	}

	var segments []models.DeviceStatusSegment
	cursor := start
	status := events[0].PreviousStatus
	if status == "" {
		status = models.StatusUnknown
	}

	for _, e := range events {
		if e.CreatedAt.Before(cursor) {
			status = e.NewStatus
			continue
		}
		segments = append(segments, models.DeviceStatusSegment{Status: status, Start: cursor, End: e.CreatedAt})
		cursor = e.CreatedAt
		status = e.NewStatus
	}
	segments = append(segments, models.DeviceStatusSegment{Status: status, Start: cursor, End: end})
	return segments
}

func (s *Server) deviceProxmoxVMs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	vms, err := s.repo.ListProxmoxVMs(ctx, id)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, vms)
}

func parseSince(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func parseMaxPoints(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// parseRange converts a {24h,7d,30d,90d} range token into its starting
// instant relative to now; an unrecognised value defaults to 24h.
func parseRange(rangeToken string) time.Time {
	now := time.Now()
	switch rangeToken {
	case "7d":
		return now.Add(-7 * 24 * time.Hour)
	case "30d":
		return now.Add(-30 * 24 * time.Hour)
	case "90d":
		return now.Add(-90 * 24 * time.Hour)
	default:
		return now.Add(-24 * time.Hour)
	}
}
