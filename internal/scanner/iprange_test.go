package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandCIDRExcludesNetworkAndBroadcast(t *testing.T) {
	ips, err := ExpandRange("192.168.0.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.0.1", "192.168.0.2"}, ips)
}

func TestExpandCIDR32IncludesSingleHost(t *testing.T) {
	ips, err := ExpandRange("10.0.0.5/32")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5"}, ips)
}

func TestExpandCIDR31IncludesBothHosts(t *testing.T) {
	ips, err := ExpandRange("10.0.0.0/31")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0", "10.0.0.1"}, ips)
}

func TestExpandRejectsIPv6(t *testing.T) {
	_, err := ExpandRange("2001:db8::/64")
	assert.Error(t, err)
}

func TestExpandDashedRange(t *testing.T) {
	ips, err := ExpandRange("10.0.0.1-10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, ips)
}

func TestExpandRejectsOversizedRange(t *testing.T) {
	_, err := ExpandRange("10.0.0.0/8")
	assert.Error(t, err)
}

func TestExpandRejectsMalformed(t *testing.T) {
	_, err := ExpandRange("not-a-range")
	assert.Error(t, err)
}
