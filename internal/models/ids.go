// Package models defines the entities shared by every CoreBit component: devices,
// maps, connections, credentials, status events and the other persisted shapes
// described by the repository interfaces in internal/repository.
package models

import (
	"crypto/rand"
	"math/rand/v2"
	"time"

	"github.com/oklog/ulid/v2"
)

var entropy = ulid.Monotonic(rand.Reader, 0)

// NewID returns a lexically sortable opaque identifier suitable for any
// entity in the data model (Device, Map, Connection, Notification, ...).
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// JitterDuration returns d plus up to 10% random jitter, used by callers that
// need to avoid thundering-herd retries (notification backoff).
func JitterDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	jitter := time.Duration(rand.Int64N(int64(d) / 10))
	return d + jitter
}
