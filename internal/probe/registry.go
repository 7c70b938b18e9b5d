package probe

import "github.com/corebit/corebit-server/internal/models"

// Default returns the standard DeviceKind → Prober dispatch table (spec
// §4.1): both MikroTik kinds share the RouterOS prober since routers and
// switches speak the identical API.
func Default() Table {
	ros := NewRouterOSProber()
	return Table{
		models.KindMikrotikRouter:    ros,
		models.KindMikrotikSwitch:    ros,
		models.KindGenericSNMP:       NewSNMPProber(),
		models.KindAccessPoint:       NewSNMPProber(),
		models.KindGenericPrometheus: NewPrometheusProber(),
		models.KindServer:            NewPrometheusProber(),
		models.KindProxmox:           NewProxmoxProber(),
		models.KindGenericPing:       NewPingProber(),
	}
}
