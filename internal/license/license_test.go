package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebit/corebit-server/internal/models"
)

func TestParseFileArrayForm(t *testing.T) {
	data := []byte(`{"licenses":[{"licenseKey":"abc","tier":"pro","deviceLimit":500}]}`)
	file, err := ParseFile(data)
	require.NoError(t, err)
	require.Len(t, file.Licenses, 1)
	assert.Equal(t, models.TierPro, file.Licenses[0].Tier)
}

func TestParseFileLegacySingleObjectForm(t *testing.T) {
	data := []byte(`{"licenseKey":"abc","tier":"device_pack","deviceLimit":25}`)
	file, err := ParseFile(data)
	require.NoError(t, err)
	require.Len(t, file.Licenses, 1)
	assert.Equal(t, 25, file.Licenses[0].DeviceLimit)
}

func TestParseFileEmptyObjectYieldsNoLicenses(t *testing.T) {
	file, err := ParseFile([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, file.Licenses)
}

func TestDeviceLimitFreeTierWithNoLicenses(t *testing.T) {
	assert.Equal(t, FreeDeviceLimit, DeviceLimit(&models.LicenseFile{}))
	assert.Equal(t, FreeDeviceLimit, DeviceLimit(nil))
}

func TestDeviceLimitDevicePacksAreAdditive(t *testing.T) {
	file := &models.LicenseFile{Licenses: []models.License{
		{Tier: models.TierDevicePack, DeviceLimit: 25},
		{Tier: models.TierDevicePack, DeviceLimit: 25},
	}}
	assert.Equal(t, FreeDeviceLimit+50, DeviceLimit(file))
}

func TestDeviceLimitProSupersedesDevicePacks(t *testing.T) {
	file := &models.LicenseFile{Licenses: []models.License{
		{Tier: models.TierDevicePack, DeviceLimit: 25},
		{Tier: models.TierPro, DeviceLimit: 1000},
	}}
	assert.Equal(t, 1000, DeviceLimit(file))
}

func TestIsUpdateEntitledFreeTierNeverEntitled(t *testing.T) {
	lic := models.License{Tier: models.TierFree, UpdatesValidUntil: time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, IsUpdateEntitled(lic, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestIsUpdateEntitledWithinWindow(t *testing.T) {
	lic := models.License{Tier: models.TierPro, UpdatesValidUntil: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, IsUpdateEntitled(lic, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, IsUpdateEntitled(lic, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFingerprintIsStableAndHex32(t *testing.T) {
	a, err := Fingerprint()
	require.NoError(t, err)
	b, err := Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}
