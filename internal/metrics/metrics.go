// Package metrics holds the process's self-observability collectors,
// exposed over /metrics by cmd/corebit. These are operational gauges about
// CoreBit itself (the Probe Scheduler and probers), not the device
// telemetry the Repository stores — that stays bounded time-series data per
// spec, this is ungoverned ops exhaust the teacher's own metrics_server.go
// exposes the same way.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "corebit",
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Wall-clock duration of one probe scheduler cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	ProbesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "corebit",
		Subsystem: "scheduler",
		Name:      "probes_in_flight",
		Help:      "Number of device probes currently executing.",
	})

	ProberResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corebit",
		Subsystem: "prober",
		Name:      "results_total",
		Help:      "Count of probe outcomes by device kind and result.",
	}, []string{"kind", "result"})
)
