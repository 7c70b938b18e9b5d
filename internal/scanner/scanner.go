// Package scanner implements the two-phase Network Scanner (C6): a ping
// sweep over an expanded IP range followed by a fingerprinting pass over
// every host that responded, streaming progress as a sequence of Events a
// caller forwards over Server-Sent Events.
package scanner

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/probe"
	"github.com/corebit/corebit-server/internal/repository"
)

const (
	pingSweepConcurrency = 100
	// pingSweepRateLimit caps pings/sec independent of the goroutine cap
	// above, so a /16 scan doesn't saturate the local link even with 100
	// probes in flight at once.
	pingSweepRateLimit = 300
)

// Request describes one scan invocation.
type Request struct {
	IPRange              string
	CredentialProfileIDs []string
	ProbeTypes           []models.ScanProbeType
}

// Scanner runs scans against a Repository for existing-device lookups and a
// CredentialRepository for the profiles to try during fingerprinting.
type Scanner struct {
	repo        repository.Repository
	pingProber  *probe.PingProber
	routerOS    *probe.RouterOSProber
	snmp        *probe.SNMPProber
	proxmox     *probe.ProxmoxProber
	httpClient  *http.Client
	pingLimiter *rate.Limiter
	log         zerolog.Logger
}

func New(repo repository.Repository, log zerolog.Logger) *Scanner {
	return &Scanner{
		repo:        repo,
		pingProber:  probe.NewPingProber(),
		routerOS:    probe.NewRouterOSProber(),
		snmp:        probe.NewSNMPProber(),
		proxmox:     probe.NewProxmoxProber(),
		httpClient:  &http.Client{Timeout: 3 * time.Second},
		pingLimiter: rate.NewLimiter(rate.Limit(pingSweepRateLimit), pingSweepConcurrency),
		log:         log.With().Str("component", "scanner").Logger(),
	}
}

// Run performs the full scan and streams Events onto the returned channel,
// which is closed when the scan completes or fails. The caller is expected
// to range over it and forward each Event as an SSE message.
func (s *Scanner) Run(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 32)
	go func() {
		defer close(out)
		s.run(ctx, req, out)
	}()
	return out
}

func (s *Scanner) run(ctx context.Context, req Request, out chan<- Event) {
	out <- Event{Type: EventStart}

	ips, err := ExpandRange(req.IPRange)
	if err != nil {
		out <- Event{Type: EventError, Message: err.Error()}
		return
	}

	existing := s.existingAddresses(ctx)

	responders := s.pingSweep(ctx, ips, existing, out)
	out <- Event{Type: EventPhaseComplete, Phase: "ping_sweep", Completed: len(ips), Total: len(ips), Found: len(responders)}

	profiles := s.loadProfiles(ctx, req.CredentialProfileIDs)
	discovered := s.fingerprintPhase(ctx, responders, profiles, req.ProbeTypes, out)
	out <- Event{Type: EventPhaseComplete, Phase: "fingerprint", Completed: len(responders), Total: len(responders), Found: discovered}

	out <- Event{Type: EventComplete, Discovered: discovered}
}

func (s *Scanner) existingAddresses(ctx context.Context) map[string]bool {
	devices, err := s.repo.ListDevices(ctx)
	if err != nil {
		return nil
	}
	out := make(map[string]bool, len(devices))
	for _, d := range devices {
		if d.Address != "" {
			out[d.Address] = true
		}
	}
	return out
}

// pingSweep probes every candidate IP with bounded concurrency, emitting a
// ping_found event per responder and periodic progress events.
func (s *Scanner) pingSweep(ctx context.Context, ips []string, existing map[string]bool, out chan<- Event) []string {
	var mu sync.Mutex
	var responders []string
	var completed int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pingSweepConcurrency)

	for _, ip := range ips {
		ip := ip
		g.Go(func() error {
			if err := s.pingLimiter.Wait(gctx); err != nil {
				return nil
			}
			start := time.Now()
			sample := s.pingProber.Probe(gctx, &models.Device{Address: ip}, nil)
			rtt := time.Since(start)

			mu.Lock()
			completed++
			if sample.Success {
				responders = append(responders, ip)
				out <- Event{Type: EventPingFound, IP: ip, RTTMillis: float64(rtt.Microseconds()) / 1000, AlreadyExists: existing[ip]}
			}
			if completed%25 == 0 || completed == len(ips) {
				out <- Event{Type: EventProgress, Phase: "ping_sweep", Completed: completed, Total: len(ips), Found: len(responders)}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return responders
}

func (s *Scanner) loadProfiles(ctx context.Context, ids []string) []*models.CredentialProfile {
	var out []*models.CredentialProfile
	for _, id := range ids {
		p, err := s.repo.GetCredentialProfile(ctx, id)
		if err == nil && p != nil {
			out = append(out, p)
		}
	}
	return out
}

// fingerprintPhase tries, per responder, RouterOS auth then SNMP sysDescr
// then Proxmox /version then a raw HTTP banner, stopping at the first
// technique that succeeds (spec §4.6 phase 2 order).
func (s *Scanner) fingerprintPhase(ctx context.Context, ips []string, profiles []*models.CredentialProfile, probeTypes []models.ScanProbeType, out chan<- Event) int {
	wantsAll := len(probeTypes) == 0
	want := map[models.ScanProbeType]bool{}
	for _, t := range probeTypes {
		want[t] = true
		if t == models.ScanFindAll {
			wantsAll = true
		}
	}

	discovered := 0
	for _, ip := range ips {
		device := &models.Device{Address: ip}
		result, profileID := s.fingerprintOne(ctx, device, profiles, wantsAll || want[models.ScanMikrotik], wantsAll || want[models.ScanSNMP], wantsAll || want[models.ScanServer])
		if result == nil {
			continue
		}
		discovered++
		out <- Event{
			Type:                EventFingerprintResult,
			IP:                  ip,
			DeviceType:          result.kind,
			DeviceData:          &result.data,
			CredentialProfileID: profileID,
			Fingerprint:         &Fingerprint{Confidence: result.confidence, DetectedVia: result.via},
		}
	}
	return discovered
}

type fingerprintMatch struct {
	kind       models.DeviceKind
	data       models.DeviceData
	confidence float64
	via        string
}

func (s *Scanner) fingerprintOne(ctx context.Context, device *models.Device, profiles []*models.CredentialProfile, tryMikrotik, trySNMP, tryServer bool) (*fingerprintMatch, string) {
	probeCtx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	if tryMikrotik {
		for _, p := range profiles {
			if p.Type != models.CredentialMikrotik {
				continue
			}
			sample := s.routerOS.Probe(probeCtx, device, p.Credentials)
			if sample.Success {
				return &fingerprintMatch{kind: models.KindMikrotikRouter, data: sampleToData(sample), confidence: 0.95, via: "routeros_api"}, p.ID
			}
		}
	}

	if trySNMP {
		for _, p := range profiles {
			if p.Type != models.CredentialSNMP {
				continue
			}
			sample := s.snmp.Probe(probeCtx, device, p.Credentials)
			if sample.Success {
				return &fingerprintMatch{kind: models.KindGenericSNMP, data: sampleToData(sample), confidence: 0.85, via: "snmp_sysdescr"}, p.ID
			}
		}
	}

	for _, p := range profiles {
		if p.Type != models.CredentialProxmox {
			continue
		}
		sample := s.proxmox.Probe(probeCtx, device, p.Credentials)
		if sample.Success {
			return &fingerprintMatch{kind: models.KindProxmox, data: sampleToData(sample), confidence: 0.9, via: "proxmox_api"}, p.ID
		}
	}

	if tryServer {
		if banner, ok := s.httpBanner(probeCtx, device.Address); ok {
			return &fingerprintMatch{kind: models.KindServer, data: models.DeviceData{Model: banner}, confidence: 0.4, via: "http_banner"}, ""
		}
	}

	return nil, ""
}

func sampleToData(sample probe.Sample) models.DeviceData {
	return models.DeviceData{
		Uptime:      sample.Uptime,
		Model:       sample.Model,
		Version:     sample.Version,
		Identity:    sample.Identity,
		CPUPercent:  sample.CPUPercent,
		MemPercent:  sample.MemPercent,
		DiskPercent: sample.DiskPercent,
		Ports:       sample.Ports,
	}
}

// httpBanner checks a handful of common ports for a Server header, used as
// the lowest-confidence "find_all" fallback signature.
func (s *Scanner) httpBanner(ctx context.Context, ip string) (string, bool) {
	for _, port := range []string{"80", "443", "9100"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s:%s/", ip, port), nil)
		if err != nil {
			continue
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			continue
		}
		server := resp.Header.Get("Server")
		resp.Body.Close()
		if server != "" {
			return strings.TrimSpace(server), true
		}
	}
	return "", false
}
