// Package license implements the License Gate (C9): fingerprint-bound,
// stackable device-count enforcement plus update entitlement checks.
package license

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/corebit/corebit-server/internal/repository"
)

// FreeDeviceLimit is the device ceiling with no license installed at all.
const FreeDeviceLimit = 10

// Gate enforces the device-count limit derived from the installed licenses
// and answers update-entitlement questions.
type Gate struct {
	repo repository.LicenseRepository
}

func NewGate(repo repository.LicenseRepository) *Gate {
	return &Gate{repo: repo}
}

// ParseFile accepts both the current `{"licenses":[...]}` array form and the
// legacy bare-object form of license.json.
func ParseFile(data []byte) (*models.LicenseFile, error) {
	var file models.LicenseFile
	if err := json.Unmarshal(data, &file); err == nil && len(file.Licenses) > 0 {
		return &file, nil
	}

	var single models.License
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse license file: %w", err)
	}
	if single.LicenseKey == "" {
		return &models.LicenseFile{}, nil
	}
	return &models.LicenseFile{Licenses: []models.License{single}}, nil
}

// DeviceLimit computes the effective device ceiling: a Pro license
// supersedes every device_pack (and the free tier) with its own limit;
// otherwise the limit is the free tier plus every device_pack's limit
// summed together.
func DeviceLimit(file *models.LicenseFile) int {
	if file == nil {
		return FreeDeviceLimit
	}

	for _, lic := range file.Licenses {
		if lic.Tier == models.TierPro {
			return lic.DeviceLimit
		}
	}

	limit := FreeDeviceLimit
	for _, lic := range file.Licenses {
		if lic.Tier == models.TierDevicePack {
			limit += lic.DeviceLimit
		}
	}
	return limit
}

// CheckCreate enforces count+delta <= limit against the repository's current
// device count (which already excludes placeholders), returning a
// human-readable reason on violation.
func (g *Gate) CheckCreate(ctx context.Context, repo repository.DeviceRepository, delta int) error {
	file, err := g.repo.LoadLicenseFile(ctx)
	if err != nil {
		return fmt.Errorf("load license file: %w", err)
	}

	limit := DeviceLimit(file)

	count, err := repo.CountDevices(ctx)
	if err != nil {
		return fmt.Errorf("count devices: %w", err)
	}

	if count+delta > limit {
		return &LimitExceededError{Count: count, Delta: delta, Limit: limit}
	}
	return nil
}

// LimitExceededError is returned by CheckCreate when a device creation would
// push the installation over its license limit. The API layer maps this to
// HTTP 402.
type LimitExceededError struct {
	Count, Delta, Limit int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("device limit exceeded: %d existing + %d new > limit %d", e.Count, e.Delta, e.Limit)
}

// IsUpdateEntitled reports whether a build dated buildDate may run: the free
// tier is never entitled, and every other tier is entitled exactly while
// buildDate is on or before the license's UpdatesValidUntil.
func IsUpdateEntitled(lic models.License, buildDate time.Time) bool {
	if lic.Tier == models.TierFree {
		return false
	}
	return !buildDate.After(lic.UpdatesValidUntil)
}
