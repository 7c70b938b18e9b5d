package scanner

import "github.com/corebit/corebit-server/internal/models"

// EventType names the SSE event kinds streamed to the client over the
// course of a scan, per spec §4.6.
type EventType string

const (
	EventStart            EventType = "start"
	EventPingFound         EventType = "ping_found"
	EventProgress          EventType = "progress"
	EventPhaseComplete     EventType = "phase_complete"
	EventFingerprintResult EventType = "fingerprint_result"
	EventComplete          EventType = "complete"
	EventError             EventType = "error"
)

// Event is one SSE message. Only the fields relevant to Type are populated.
type Event struct {
	Type EventType `json:"type"`

	// ping_found
	IP            string  `json:"ip,omitempty"`
	RTTMillis     float64 `json:"rttMs,omitempty"`
	AlreadyExists bool    `json:"alreadyExists,omitempty"`

	// progress
	Phase     string `json:"phase,omitempty"`
	Completed int    `json:"completed,omitempty"`
	Total     int    `json:"total,omitempty"`
	Found     int    `json:"found,omitempty"`

	// fingerprint_result
	DeviceType          models.DeviceKind `json:"deviceType,omitempty"`
	DeviceData          *models.DeviceData `json:"deviceData,omitempty"`
	CredentialProfileID string            `json:"credentialProfileId,omitempty"`
	Fingerprint         *Fingerprint      `json:"fingerprint,omitempty"`

	// complete
	Discovered int `json:"discovered,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Fingerprint records how confidently, and by what means, a responding host
// was identified during phase 2.
type Fingerprint struct {
	Confidence float64 `json:"confidence"`
	DetectedVia string `json:"detectedVia"`
}
