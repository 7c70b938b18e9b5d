package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeCredentialsCustomWins(t *testing.T) {
	profile := map[string]string{"username": "admin", "password": "profile-pw", "apiPort": "8728"}
	custom := map[string]string{"password": "custom-pw"}

	merged := MergeCredentials(profile, custom)

	assert.Equal(t, "admin", merged["username"])
	assert.Equal(t, "custom-pw", merged["password"])
	assert.Equal(t, "8728", merged["apiPort"])
}

func TestMergeCredentialsNilSides(t *testing.T) {
	assert.Empty(t, MergeCredentials(nil, nil))
	assert.Equal(t, map[string]string{"a": "b"}, MergeCredentials(nil, map[string]string{"a": "b"}))
	assert.Equal(t, map[string]string{"a": "b"}, MergeCredentials(map[string]string{"a": "b"}, nil))
}

func TestConnectionKeyIsUndirected(t *testing.T) {
	a := &Connection{SourceID: "dev-1", TargetID: "dev-2", SourcePort: "eth0", TargetPort: "eth1"}
	b := &Connection{SourceID: "dev-2", TargetID: "dev-1", SourcePort: "eth1", TargetPort: "eth0"}

	ka, pa, kb, pb := a.Key()
	ka2, pa2, kb2, pb2 := b.Key()
	assert.Equal(t, []string{ka, pa, kb, pb}, []string{ka2, pa2, kb2, pb2})
}

func TestLinkSpeedBitsPerSec(t *testing.T) {
	assert.Equal(t, 1e9, LinkSpeed1G.BitsPerSec())
	assert.Equal(t, 100e9, LinkSpeed100G.BitsPerSec())
	assert.Equal(t, float64(0), LinkSpeed("bogus").BitsPerSec())
}

func TestAlarmMuteActiveAndSilences(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	global := &AlarmMute{MuteUntil: &future}
	require.True(t, global.Active(now))
	assert.True(t, global.Silences("anyone"))

	expired := &AlarmMute{MuteUntil: &past}
	assert.False(t, expired.Active(now))

	forUser := &AlarmMute{UserID: "u1", MuteUntil: &future}
	assert.True(t, forUser.Silences("u1"))
	assert.False(t, forUser.Silences("u2"))

	indefinite := &AlarmMute{}
	assert.True(t, indefinite.Active(now))
}

func TestDeviceCloneIsIndependent(t *testing.T) {
	d := &Device{
		ID:   "d1",
		Data: DeviceData{Ports: []Port{{Name: "eth0"}}},
		CustomCredentials: map[string]string{"username": "admin"},
	}
	clone := d.Clone()
	clone.Data.Ports[0].Name = "eth1"
	clone.CustomCredentials["username"] = "changed"

	assert.Equal(t, "eth0", d.Data.Ports[0].Name)
	assert.Equal(t, "admin", d.CustomCredentials["username"])
}
