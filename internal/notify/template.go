package notify

import (
	"strings"

	"github.com/corebit/corebit-server/internal/models"
)

// Render substitutes the bracketed placeholders spec §4.5 step 3 defines.
// Missing fields (e.g. Identity when a device was never successfully probed)
// render as empty string rather than erroring.
func Render(tmpl string, device *models.Device, event models.DeviceStatusEvent) string {
	r := strings.NewReplacer(
		"[Device.Name]", device.Name,
		"[Device.Address]", device.Address,
		"[Device.Identity]", device.Data.Identity,
		"[Device.Type]", string(device.Kind),
		"[Service.Status]", string(device.Status),
		"[Status.Old]", string(event.PreviousStatus),
		"[Status.New]", string(event.NewStatus),
	)
	return r.Replace(tmpl)
}
