// Package probe implements the per-protocol Device probers (C2): pure
// functions of (device, credentials, deadline) that return a Sample. The
// Scheduler (internal/scheduler) is the only caller; probers never touch the
// repository or the Status Engine directly.
package probe

import (
	"context"
	"time"

	"github.com/corebit/corebit-server/internal/models"
)

// ErrorKind classifies a failed Sample per spec §7 (transient network, auth
// failure, protocol error) without bubbling errors up to the API layer. It is
// carried on the Sample; the Status Engine counts every failure toward its
// thresholds regardless of kind.
type ErrorKind string

const (
	ErrNone             ErrorKind = ""
	ErrTransientNetwork ErrorKind = "transient_network"
	ErrAuthFailure      ErrorKind = "auth_failure"
	ErrProtocolError    ErrorKind = "protocol_error"
)

// Sample is the uniform result of one probe attempt, whatever the protocol.
type Sample struct {
	Success bool
	RTT     time.Duration

	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
	Uptime      time.Duration
	Identity    string
	Model       string
	Version     string
	Ports       []models.Port

	// InOctets/OutOctets/CounterBits are populated when the device exposes
	// link counters the Differencer (internal/linkstats) can use; CounterBits
	// is 0 when no counter was read.
	InOctets    uint64
	OutOctets   uint64
	CounterBits int

	ProxmoxVms   []models.ProxmoxVm
	ProxmoxNode  *models.ProxmoxNode

	ErrorKind ErrorKind
	Err       error
}

// Prober polls a single device over its native protocol. Implementations
// must honour ctx's deadline for every suspension point (TCP connect, read,
// write, DNS) — see spec §5.
type Prober interface {
	Probe(ctx context.Context, device *models.Device, credentials map[string]string) Sample
}

// Table dispatches a Device's Kind to the Prober that understands its
// protocol (spec's "tagged variant of ProbeSample plus a dispatch table
// DeviceKind → Prober").
type Table map[models.DeviceKind]Prober

// For returns the Prober registered for kind, or nil if the kind is unknown
// (placeholders never reach here; the Scheduler filters them out earlier).
func (t Table) For(kind models.DeviceKind) Prober {
	return t[kind]
}

// failure builds a failed Sample from a classified error, the single
// construction point every prober uses so Sample.Success/ErrorKind/Err stay
// consistent.
func failure(kind ErrorKind, err error) Sample {
	return Sample{Success: false, ErrorKind: kind, Err: err}
}
