package api

import (
	"io"
	"net/http"
)

func (s *Server) getSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.PathValue("key")

	value, ok, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) putSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.PathValue("key")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.repo.PutSetting(ctx, key, string(body)); err != nil {
		writeRepositoryError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": string(body)})
}
