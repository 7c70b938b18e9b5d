package probe

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestResolveCustomCredentialsWin(t *testing.T) {
	profile := &models.CredentialProfile{Credentials: map[string]string{"community": "public"}}
	device := &models.Device{CustomCredentials: map[string]string{"community": "private"}}

	got := Resolve(profile, device)
	assert.Equal(t, "private", got["community"])
}

func TestResolveNilProfile(t *testing.T) {
	device := &models.Device{CustomCredentials: map[string]string{"username": "admin"}}
	got := Resolve(nil, device)
	assert.Equal(t, "admin", got["username"])
}

func TestDefaultTableCoversEveryNonPlaceholderKind(t *testing.T) {
	table := Default()
	for _, kind := range []models.DeviceKind{
		models.KindMikrotikRouter,
		models.KindMikrotikSwitch,
		models.KindGenericSNMP,
		models.KindGenericPrometheus,
		models.KindGenericPing,
		models.KindServer,
		models.KindProxmox,
		models.KindAccessPoint,
	} {
		assert.NotNil(t, table.For(kind), "missing prober for %s", kind)
	}
}

func TestRouterOSLengthEncodingRoundTrips(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 16383, 16384, 1 << 20} {
		encoded := encodeLength(n)
		assert.NotEmpty(t, encoded)
		c := &routerosClient{r: bufio.NewReader(bytes.NewReader(encoded))}
		decoded, err := c.readLength()
		assert.NoError(t, err)
		assert.Equal(t, n, decoded)
	}
}

func TestParseRouterOSDuration(t *testing.T) {
	assert.Equal(t, int64(0), parseRouterOSDuration("").Nanoseconds())
	d := parseRouterOSDuration("1w2d3h4m5s")
	assert.True(t, d.Hours() > 24*9)
}
