package probe

import "github.com/corebit/corebit-server/internal/models"

// Resolve returns the effective credential set for a device: its assigned
// profile's values with CustomCredentials layered on top (spec §4.2). A
// missing profile (nil) is treated as an empty bag so custom-only devices
// still resolve.
func Resolve(profile *models.CredentialProfile, device *models.Device) map[string]string {
	var profileCreds map[string]string
	if profile != nil {
		profileCreds = profile.Credentials
	}
	return models.MergeCredentials(profileCreds, device.CustomCredentials)
}

// stringOr returns creds[key], or fallback when the key is absent or empty.
func stringOr(creds map[string]string, key, fallback string) string {
	if v, ok := creds[key]; ok && v != "" {
		return v
	}
	return fallback
}
