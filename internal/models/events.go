package models

import "time"

// DeviceStatusEvent is an append-only record of a status transition.
// Adjacent events for the same device satisfy
// e[i].NewStatus == e[i+1].PreviousStatus and are non-decreasing in CreatedAt.
type DeviceStatusEvent struct {
	ID               string    `json:"id"`
	DeviceID         string    `json:"deviceId"`
	PreviousStatus   Status    `json:"previousStatus"`
	NewStatus        Status    `json:"newStatus"`
	CreatedAt        time.Time `json:"createdAt"`
	Message          string    `json:"message,omitempty"`
}

// DeviceStatusSegment is a contiguous interval of a single status, derived on
// read by folding the event log against a requested [Start, End) range.
type DeviceStatusSegment struct {
	Status Status    `json:"status"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// DeviceMetricsHistory is one resource-utilisation sample.
type DeviceMetricsHistory struct {
	DeviceID    string        `json:"deviceId"`
	CPUPercent  float64       `json:"cpuPercent"`
	MemPercent  float64       `json:"memPercent"`
	DiskPercent float64       `json:"diskPercent"`
	PingRTT     time.Duration `json:"pingRttMs"`
	Uptime      time.Duration `json:"uptimeSeconds"`
	Timestamp   time.Time     `json:"timestamp"`
}

// PrometheusMetricConfig describes one user-declared custom series the
// Prometheus Prober should extract in addition to the fixed node_exporter set.
type PrometheusMetricConfig struct {
	ID          string `json:"id"`
	MetricName  string `json:"metricName"`
	DisplayName string `json:"displayName"`
	Unit        string `json:"unit,omitempty"`
	Transform   string `json:"transform,omitempty"` // e.g. "rate", "none"
}

// PrometheusMetricsHistory is one scraped custom-metric sample.
type PrometheusMetricsHistory struct {
	DeviceID  string    `json:"deviceId"`
	MetricID  string    `json:"metricId"`
	Value     float64   `json:"value"`
	RawValue  float64   `json:"rawValue"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionBandwidthHistory is one Differencer output sample.
type ConnectionBandwidthHistory struct {
	ConnectionID  string    `json:"connectionId"`
	InBitsPerSec  float64   `json:"inBitsPerSec"`
	OutBitsPerSec float64   `json:"outBitsPerSec"`
	Utilisation   float64   `json:"utilisationPercent"`
	Timestamp     time.Time `json:"timestamp"`
}
