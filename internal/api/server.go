// Package api exposes CoreBit's HTTP surface: device/connection/notification
// CRUD, the network scanner's SSE stream, and the WebSocket realtime bus.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/corebit/corebit-server/internal/license"
	"github.com/corebit/corebit-server/internal/realtime"
	"github.com/corebit/corebit-server/internal/repository"
	"github.com/corebit/corebit-server/internal/scanner"
)

// Server wires the Repository and every on-demand component (scanner,
// license gate, realtime bus) to HTTP handlers.
type Server struct {
	repo    repository.Repository
	gate    *license.Gate
	scanner *scanner.Scanner
	hub     *realtime.Hub
	log     zerolog.Logger
}

func New(repo repository.Repository, gate *license.Gate, scan *scanner.Scanner, hub *realtime.Hub, log zerolog.Logger) *Server {
	return &Server{
		repo:    repo,
		gate:    gate,
		scanner: scan,
		hub:     hub,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// Routes builds the full handler tree using the net/http 1.22+ method+path
// pattern syntax, matching the teacher's plain-mux (no third-party router)
// idiom seen across its cmd/*/http_server.go and metrics_server.go files.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/devices", s.listDevices)
	mux.HandleFunc("POST /api/devices", s.createDevice)
	mux.HandleFunc("POST /api/devices/batch", s.createDevicesBatch)
	mux.HandleFunc("PATCH /api/devices/{id}", s.updateDevice)
	mux.HandleFunc("DELETE /api/devices/{id}", s.deleteDevice)
	mux.HandleFunc("GET /api/devices/{id}/metrics-history/aggregated", s.deviceMetricsHistory)
	mux.HandleFunc("GET /api/devices/{id}/status-segments", s.deviceStatusSegments)
	mux.HandleFunc("GET /api/devices/{id}/status-events", s.deviceStatusEvents)
	mux.HandleFunc("GET /api/devices/{id}/proxmox-vms", s.deviceProxmoxVMs)

	mux.HandleFunc("GET /api/connections", s.listConnections)
	mux.HandleFunc("POST /api/connections", s.createConnection)
	mux.HandleFunc("PATCH /api/connections/{id}", s.updateConnection)
	mux.HandleFunc("DELETE /api/connections/{id}", s.deleteConnection)
	mux.HandleFunc("GET /api/connections/{id}/bandwidth-history/aggregated", s.connectionBandwidthHistory)

	mux.HandleFunc("POST /api/network-scan", s.networkScan)
	mux.HandleFunc("GET /api/network-scan-stream", s.networkScanStream)

	mux.HandleFunc("POST /api/alarm-mutes", s.createAlarmMute)
	mux.HandleFunc("DELETE /api/alarm-mutes/{id}", s.deleteAlarmMute)

	mux.HandleFunc("GET /api/duty-on-call", s.dutyOnCall)

	mux.HandleFunc("GET /api/settings/{key}", s.getSetting)
	mux.HandleFunc("PUT /api/settings/{key}", s.putSetting)

	mux.HandleFunc("/ws", s.hub.ServeHTTP)

	return s.loggingMiddleware(mux)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("handled request")
	})
}
