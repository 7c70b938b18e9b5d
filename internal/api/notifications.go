package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/notify"
)

func (s *Server) createAlarmMute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var m models.AlarmMute
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	m.ID = models.NewID()
	m.CreatedAt = time.Now()

	if err := s.repo.CreateAlarmMute(ctx, &m); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &m)
}

func (s *Server) deleteAlarmMute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.repo.DeleteAlarmMute(ctx, id); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dutyOnCall answers "who is on duty right now", resolving the configured
// shift windows the way the Notification Dispatcher (C5) does when deciding
// whether a personal notification fires.
func (s *Server) dutyOnCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	shifts, err := s.repo.ListOnDutyShifts(ctx)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	userIDs := notify.CurrentShiftUsers(time.Now(), shifts)
	writeJSON(w, http.StatusOK, map[string][]string{"userIds": userIDs})
}
