package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/scanner"
)

type scanRequest struct {
	IPRange              string                   `json:"ipRange"`
	CredentialProfileIDs []string                 `json:"credentialProfileIds"`
	ProbeTypes           []models.ScanProbeType   `json:"probeTypes"`
}

func decodeScanRequest(r *http.Request) (scanner.Request, error) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return scanner.Request{}, err
	}
	return scanner.Request{
		IPRange:              req.IPRange,
		CredentialProfileIDs: req.CredentialProfileIDs,
		ProbeTypes:           req.ProbeTypes,
	}, nil
}

// networkScan runs a scan to completion and returns only the terminal
// "complete" event, for callers that don't want to consume an SSE stream.
func (s *Server) networkScan(w http.ResponseWriter, r *http.Request) {
	req, err := decodeScanRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	var last scanner.Event
	for evt := range s.scanner.Run(r.Context(), req) {
		last = evt
		if evt.Type == scanner.EventError {
			writeClientError(w, http.StatusBadGateway, evt.Message, "")
			return
		}
	}
	writeJSON(w, http.StatusOK, last)
}

// networkScanStream runs a scan and forwards every Event as a Server-Sent
// Event, flushing after each one so the client sees live progress. While it
// waits for events it writes an SSE comment line every 15 s as a heartbeat.
func (s *Server) networkScanStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeScanRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeClientError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := s.scanner.Run(r.Context(), req)
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
