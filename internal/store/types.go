package store

import "time"

// Kind names a journal entry type.
type Kind string

const (
	KindParticipantJoined Kind = "participant_joined"
	KindParticipantLeft   Kind = "participant_left"
	KindRegistryReset     Kind = "registry_reset"
	KindPollFailed        Kind = "poll_failed"
	KindVolumeObserved    Kind = "volume_observed"
	KindVolumeSet         Kind = "volume_set"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindParticipantJoined, KindParticipantLeft, KindRegistryReset,
		KindPollFailed, KindVolumeObserved, KindVolumeSet:
		return true
	}
	return false
}

// Session is one listening run.
type Session struct {
	ID        string
	Room      string
	DeviceID  string
	StartedAt time.Time
}

// Entry is one journal record.
//
// LevelDB and ChangeIndex are only set for volume entries.
type Entry struct {
	SessionID      string
	Seq            int64
	Kind           Kind
	ParticipantID  string
	CueID          string
	LevelDB        *float64
	ChangeIndex    *int64
	OriginDeviceID string
	MissCount      int
	RecordedAt     time.Time
}
