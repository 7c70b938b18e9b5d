package models

import "time"

// Map is a named topology canvas devices are placed on.
type Map struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DevicePlacement pins a Device at a point on a Map. (device, map) is unique.
type DevicePlacement struct {
	ID       string  `json:"id"`
	DeviceID string  `json:"deviceId"`
	MapID    string  `json:"mapId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// LinkSpeed is the nominal capacity of a Connection, used to compute
// utilisation percentage from measured bits/sec.
type LinkSpeed string

const (
	LinkSpeed1G   LinkSpeed = "1G"
	LinkSpeed10G  LinkSpeed = "10G"
	LinkSpeed25G  LinkSpeed = "25G"
	LinkSpeed40G  LinkSpeed = "40G"
	LinkSpeed100G LinkSpeed = "100G"
)

// BitsPerSec returns the link's nominal capacity in bits/sec, or 0 if unknown.
func (s LinkSpeed) BitsPerSec() float64 {
	switch s {
	case LinkSpeed1G:
		return 1e9
	case LinkSpeed10G:
		return 10e9
	case LinkSpeed25G:
		return 25e9
	case LinkSpeed40G:
		return 40e9
	case LinkSpeed100G:
		return 100e9
	default:
		return 0
	}
}

// MonitoredEnd identifies which side of a Connection owns the interface
// counters used to derive bandwidth.
type MonitoredEnd string

const (
	MonitoredSource MonitoredEnd = "source"
	MonitoredTarget MonitoredEnd = "target"
)

// DynamicType enumerates the kinds of automatically-repointed connections.
type DynamicType string

const (
	DynamicProxmoxVMHost DynamicType = "proxmox_vm_host"
)

// DynamicMetadata carries the bookkeeping the Dynamic Connection Resolver
// (C8) needs to repoint a connection when a Proxmox VM migrates hosts.
type DynamicMetadata struct {
	VMDeviceID              string `json:"vmDeviceId"`
	MonitoredEnd            MonitoredEnd `json:"monitoredEnd"`
	LastResolvedHostDeviceID string `json:"lastResolvedHostDeviceId,omitempty"`
}

// LinkStats is the most recent bandwidth snapshot computed by the
// Link-counter Differencer (C4) for a Connection.
type LinkStats struct {
	InBitsPerSec  float64   `json:"inBitsPerSec"`
	OutBitsPerSec float64   `json:"outBitsPerSec"`
	Utilisation   float64   `json:"utilisationPercent"`
	IsStale       bool      `json:"isStale"`
	SampledAt     time.Time `json:"sampledAt,omitzero"`
}

// Connection is a link between two devices on a Map.
type Connection struct {
	ID       string `json:"id"`
	MapID    string `json:"mapId"`
	SourceID string `json:"sourceDeviceId"`
	TargetID string `json:"targetDeviceId"`

	SourcePort string    `json:"sourcePort,omitempty"`
	TargetPort string    `json:"targetPort,omitempty"`
	LinkSpeed  LinkSpeed `json:"linkSpeed"`

	MonitorInterface MonitoredEnd `json:"monitorInterface,omitempty"`
	MonitorSNMPIndex int          `json:"monitorSnmpIndex,omitempty"`

	LinkStats LinkStats `json:"linkStats"`

	IsDynamic       bool             `json:"isDynamic"`
	DynamicType     DynamicType      `json:"dynamicType,omitempty"`
	DynamicMetadata *DynamicMetadata `json:"dynamicMetadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasActiveMonitor reports whether the connection has enough information for
// the Differencer to track a counter series: an end to monitor, and either an
// SNMP ifIndex or a prior sample showing the endpoint reports counters
// directly (RouterOS, Prometheus totals).
func (c *Connection) HasActiveMonitor() bool {
	if c.MonitorInterface == "" {
		return false
	}
	return c.MonitorSNMPIndex > 0 || !c.LinkStats.SampledAt.IsZero()
}

// Key returns the undirected endpoint tuple used to reject duplicate
// connections (at most one Connection per unordered source/target/port set).
func (c *Connection) Key() (string, string, string, string) {
	a, aPort, b, bPort := c.SourceID, c.SourcePort, c.TargetID, c.TargetPort
	if a > b || (a == b && aPort > bPort) {
		a, b = b, a
		aPort, bPort = bPort, aPort
	}
	return a, aPort, b, bPort
}
