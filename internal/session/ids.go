package session

import "github.com/google/uuid"

// NewDeviceID returns a random (v4) identifier for the local device. The
// server parses volume_changer_uuid as a UUID, so the format matters.
func NewDeviceID() string {
	return uuid.NewString()
}

// NewSessionID returns a time-sortable (v7) session identifier so journal
// sessions list in creation order.
//
// Panics if UUID generation fails (should never happen in practice).
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}
