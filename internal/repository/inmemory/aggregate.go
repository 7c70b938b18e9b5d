package inmemory

import (
	"time"

	"github.com/corebit/corebit-server/internal/models"
)

// downsampleMetrics folds rows into at most maxPoints time buckets, each
// represented by the bucket's mean (§4.3 "down-samples ... via time-bucket
// mean"). maxPoints <= 0 or rows already within budget are returned as-is.
func downsampleMetrics(rows []models.DeviceMetricsHistory, maxPoints int) []models.DeviceMetricsHistory {
	if maxPoints <= 0 || len(rows) <= maxPoints {
		return rows
	}

	bucketSize := float64(len(rows)) / float64(maxPoints)
	out := make([]models.DeviceMetricsHistory, 0, maxPoints)
	for b := 0; b < maxPoints; b++ {
		start := int(float64(b) * bucketSize)
		end := int(float64(b+1) * bucketSize)
		if end > len(rows) {
			end = len(rows)
		}
		if start >= end {
			continue
		}
		bucket := rows[start:end]
		out = append(out, meanMetrics(bucket))
	}
	return out
}

func meanMetrics(bucket []models.DeviceMetricsHistory) models.DeviceMetricsHistory {
	var sum models.DeviceMetricsHistory
	for _, r := range bucket {
		sum.CPUPercent += r.CPUPercent
		sum.MemPercent += r.MemPercent
		sum.DiskPercent += r.DiskPercent
		sum.PingRTT += r.PingRTT
		sum.Uptime += r.Uptime
	}
	n := float64(len(bucket))
	mid := bucket[len(bucket)/2]
	return models.DeviceMetricsHistory{
		DeviceID:    mid.DeviceID,
		CPUPercent:  sum.CPUPercent / n,
		MemPercent:  sum.MemPercent / n,
		DiskPercent: sum.DiskPercent / n,
		PingRTT:     sum.PingRTT / time.Duration(n),
		Uptime:      sum.Uptime / time.Duration(n),
		Timestamp:   mid.Timestamp,
	}
}

func downsampleBandwidth(rows []models.ConnectionBandwidthHistory, maxPoints int) []models.ConnectionBandwidthHistory {
	if maxPoints <= 0 || len(rows) <= maxPoints {
		return rows
	}

	bucketSize := float64(len(rows)) / float64(maxPoints)
	out := make([]models.ConnectionBandwidthHistory, 0, maxPoints)
	for b := 0; b < maxPoints; b++ {
		start := int(float64(b) * bucketSize)
		end := int(float64(b+1) * bucketSize)
		if end > len(rows) {
			end = len(rows)
		}
		if start >= end {
			continue
		}
		bucket := rows[start:end]
		var sumIn, sumOut, sumUtil float64
		for _, r := range bucket {
			sumIn += r.InBitsPerSec
			sumOut += r.OutBitsPerSec
			sumUtil += r.Utilisation
		}
		n := float64(len(bucket))
		mid := bucket[len(bucket)/2]
		out = append(out, models.ConnectionBandwidthHistory{
			ConnectionID:  mid.ConnectionID,
			InBitsPerSec:  sumIn / n,
			OutBitsPerSec: sumOut / n,
			Utilisation:   sumUtil / n,
			Timestamp:     mid.Timestamp,
		})
	}
	return out
}
