package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Fixed node_exporter series read on every cycle (spec §4.1.3). These are the
// only series read; custom series a device declares are not extracted.
const (
	metricCPUSeconds = "node_cpu_seconds_total"
	metricMemAvail   = "node_memory_MemAvailable_bytes"
	metricMemTotal   = "node_memory_MemTotal_bytes"
	metricNetRecv    = "node_network_receive_bytes_total"
	metricNetTrans   = "node_network_transmit_bytes_total"
)

// PrometheusProber scrapes an exporter's text-format /metrics endpoint and
// extracts the fixed node_exporter series above; device-declared custom
// series are not extracted.
type PrometheusProber struct {
	HTTPClient *http.Client
}

func NewPrometheusProber() *PrometheusProber {
	return &PrometheusProber{HTTPClient: &http.Client{Timeout: 6 * time.Second}}
}

func (p *PrometheusProber) Probe(ctx context.Context, device *models.Device, creds map[string]string) Sample {
	start := time.Now()
	url := stringOr(creds, "url", fmt.Sprintf("http://%s:9100/metrics", device.Address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure(ErrProtocolError, fmt.Errorf("bad scrape url: %w", err))
	}
	if token := creds["bearerToken"]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return failure(ErrTransientNetwork, fmt.Errorf("scrape: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failure(ErrProtocolError, fmt.Errorf("scrape returned %d", resp.StatusCode))
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return failure(ErrProtocolError, fmt.Errorf("parse metrics: %w", err))
	}

	sample := Sample{Success: true, RTT: time.Since(start)}

	memAvail := sumGauge(families[metricMemAvail])
	memTotal := sumGauge(families[metricMemTotal])
	if memTotal > 0 {
		sample.MemPercent = (1 - memAvail/memTotal) * 100
	}
	cpuSeconds := sumCounterByMode(families[metricCPUSeconds])
	if cpuSeconds.total > 0 {
		sample.CPUPercent = (1 - cpuSeconds.idle/cpuSeconds.total) * 100
	}
	sample.InOctets = uint64(sumCounter(families[metricNetRecv]))
	sample.OutOctets = uint64(sumCounter(families[metricNetTrans]))
	if sample.InOctets != 0 || sample.OutOctets != 0 {
		sample.CounterBits = 64
	}

	return sample
}

func sumGauge(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetGauge().GetValue()
	}
	return total
}

func sumCounter(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

type cpuModeTotals struct{ idle, total float64 }

// sumCounterByMode sums node_cpu_seconds_total split by its "mode" label so
// utilisation can be computed as 1 - idle/total across all cores.
func sumCounterByMode(mf *dto.MetricFamily) cpuModeTotals {
	var out cpuModeTotals
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		v := m.GetCounter().GetValue()
		out.total += v
		for _, lbl := range m.GetLabel() {
			if lbl.GetName() == "mode" && lbl.GetValue() == "idle" {
				out.idle += v
			}
		}
	}
	return out
}
