package testutil

// Fixed identifiers for reproducible traces and journals.
const (
	DeviceID  = "00000000-0000-4000-8000-00000000d001"
	SessionID = "00000000-0000-7000-8000-000000005001"
)
