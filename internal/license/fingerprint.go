package license

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
)

const machineIDPath = "/etc/machine-id"

// Fingerprint computes the host identity a license is bound to:
// sha256(hostname || lowest MAC address || /etc/machine-id if present),
// truncated to 32 hex characters.
func Fingerprint() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}

	mac, err := lowestMAC()
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(hostname))
	h.Write([]byte(mac))
	if id, err := os.ReadFile(machineIDPath); err == nil {
		h.Write(id)
	}

	return hex.EncodeToString(h.Sum(nil))[:32], nil
}

// lowestMAC returns the lexicographically smallest non-empty, non-zero MAC
// address across every network interface, so the fingerprint is stable
// regardless of interface enumeration order.
func lowestMAC() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var lowest string
	for _, iface := range ifaces {
		mac := iface.HardwareAddr.String()
		if mac == "" || mac == "00:00:00:00:00:00" {
			continue
		}
		if lowest == "" || mac < lowest {
			lowest = mac
		}
	}
	return lowest, nil
}
