package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/corebit/corebit-server/internal/models"
)

// ProxmoxProber polls a Proxmox VE node's REST API (api2/json) for node
// status and guest inventory, grounded on the ticket/CSRF and API-token auth
// flows exercised by the teacher's pkg/proxmox client tests.
type ProxmoxProber struct {
	HTTPClient *http.Client
}

func NewProxmoxProber() *ProxmoxProber {
	return &ProxmoxProber{
		HTTPClient: &http.Client{
			Timeout:   8 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		},
	}
}

type pveEnvelope[T any] struct {
	Data T `json:"data"`
}

type pveTicket struct {
	Ticket   string `json:"ticket"`
	CSRF     string `json:"CSRFPreventionToken"`
}

type pveNodeStatus struct {
	Uptime int64 `json:"uptime"`
	CPU    float64 `json:"cpu"`
	Memory struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
	} `json:"memory"`
	RootFS struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
	} `json:"rootfs"`
	PVEVersion string `json:"pveversion"`
}

type pveGuest struct {
	VMID   int     `json:"vmid"`
	Name   string  `json:"name"`
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	Mem    int64   `json:"mem"`
	MaxMem int64   `json:"maxmem"`
}

func (p *ProxmoxProber) Probe(ctx context.Context, device *models.Device, creds map[string]string) Sample {
	start := time.Now()
	base := strings.TrimRight(stringOr(creds, "host", "https://"+device.Address+":8006"), "/")
	node := stringOr(creds, "node", device.Name)

	auth, err := p.authenticate(ctx, base, creds)
	if err != nil {
		return failure(ErrAuthFailure, fmt.Errorf("proxmox auth: %w", err))
	}

	var status pveEnvelope[pveNodeStatus]
	if err := p.getJSON(ctx, base, fmt.Sprintf("/nodes/%s/status", node), auth, &status); err != nil {
		return failure(ErrProtocolError, fmt.Errorf("node status: %w", err))
	}

	var qemu pveEnvelope[[]pveGuest]
	_ = p.getJSON(ctx, base, fmt.Sprintf("/nodes/%s/qemu", node), auth, &qemu)
	var lxc pveEnvelope[[]pveGuest]
	_ = p.getJSON(ctx, base, fmt.Sprintf("/nodes/%s/lxc", node), auth, &lxc)

	vms := make([]models.ProxmoxVm, 0, len(qemu.Data)+len(lxc.Data))
	for _, g := range qemu.Data {
		vms = append(vms, toProxmoxVm(device.ID, g, models.GuestQEMU))
	}
	for _, g := range lxc.Data {
		vms = append(vms, toProxmoxVm(device.ID, g, models.GuestLXC))
	}

	memPercent := 0.0
	if status.Data.Memory.Total > 0 {
		memPercent = float64(status.Data.Memory.Used) / float64(status.Data.Memory.Total) * 100
	}
	diskPercent := 0.0
	if status.Data.RootFS.Total > 0 {
		diskPercent = float64(status.Data.RootFS.Used) / float64(status.Data.RootFS.Total) * 100
	}

	return Sample{
		Success:     true,
		RTT:         time.Since(start),
		CPUPercent:  status.Data.CPU * 100,
		MemPercent:  memPercent,
		DiskPercent: diskPercent,
		Uptime:      time.Duration(status.Data.Uptime) * time.Second,
		Version:     status.Data.PVEVersion,
		ProxmoxVms:  vms,
		ProxmoxNode: &models.ProxmoxNode{NodeName: node, HostDeviceID: device.ID},
	}
}

func toProxmoxVm(hostID string, g pveGuest, kind models.GuestType) models.ProxmoxVm {
	status := models.GuestUnknown
	switch g.Status {
	case "running":
		status = models.GuestRunning
	case "stopped":
		status = models.GuestStopped
	case "paused":
		status = models.GuestPaused
	}
	memPercent := 0.0
	if g.MaxMem > 0 {
		memPercent = float64(g.Mem) / float64(g.MaxMem) * 100
	}
	return models.ProxmoxVm{
		HostDeviceID: hostID,
		VMID:         g.VMID,
		Name:         g.Name,
		Type:         kind,
		Status:       status,
		CPUPercent:   g.CPU * 100,
		MemPercent:   memPercent,
	}
}

// pveAuth carries whichever of the two auth schemes the credential set
// selected: a pre-issued API token (Authorization header, no CSRF needed for
// GETs) or a ticket+CSRF pair obtained from /access/ticket.
type pveAuth struct {
	tokenHeader string
	ticket      string
}

func (p *ProxmoxProber) authenticate(ctx context.Context, base string, creds map[string]string) (*pveAuth, error) {
	if tokenName, ok := creds["tokenName"]; ok && tokenName != "" {
		return &pveAuth{tokenHeader: fmt.Sprintf("PVEAPIToken=%s=%s", tokenName, creds["tokenValue"])}, nil
	}

	user := creds["username"]
	pass := creds["password"]
	if user == "" {
		return nil, fmt.Errorf("no tokenName or username credential configured")
	}

	form := strings.NewReader(fmt.Sprintf("username=%s&password=%s", user, pass))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api2/json/access/ticket", form)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticket request returned %d", resp.StatusCode)
	}
	var out pveEnvelope[pveTicket]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &pveAuth{ticket: out.Data.Ticket}, nil
}

func (p *ProxmoxProber) getJSON(ctx context.Context, base, path string, auth *pveAuth, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api2/json"+path, nil)
	if err != nil {
		return err
	}
	if auth.tokenHeader != "" {
		req.Header.Set("Authorization", auth.tokenHeader)
	} else {
		req.Header.Set("Cookie", "PVEAuthCookie="+auth.ticket)
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("authentication error: credential does not have sufficient permissions")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status " + strconv.Itoa(resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
