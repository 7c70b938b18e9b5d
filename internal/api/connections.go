package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository"
)

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mapID := r.URL.Query().Get("mapId")
	if mapID == "" {
		writeBadRequest(w, "mapId is required")
		return
	}

	conns, err := s.repo.ListConnections(ctx, mapID)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var c models.Connection
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	// The ID is left empty so the repository assigns it and runs its
	// duplicate-connection check, which applies only to new connections.
	now := time.Now()
	c.ID = ""
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.repo.UpsertConnection(ctx, &c); err != nil {
		if errors.Is(err, repository.ErrDuplicateConnection) {
			writeClientError(w, http.StatusConflict, "a connection between these endpoints already exists", "")
			return
		}
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &c)
}

func (s *Server) updateConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	existing, err := s.repo.GetConnection(ctx, id)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}

	var patch models.Connection
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	patch.ID = existing.ID
	patch.CreatedAt = existing.CreatedAt
	patch.UpdatedAt = time.Now()

	if err := s.repo.UpsertConnection(ctx, &patch); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, &patch)
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.repo.DeleteConnection(ctx, id); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) connectionBandwidthHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since")
		return
	}
	maxPoints := parseMaxPoints(r.URL.Query().Get("maxPoints"))

	rows, err := s.repo.AggregatedBandwidthHistory(ctx, id, since, maxPoints)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
