package transport

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/roach88/thebeat/internal/beat"
	"github.com/roach88/thebeat/internal/volume"
)

// wireReading is one participant entry in the snapshot body.
type wireReading struct {
	HR        *float64 `json:"hr"`
	AudioFile string   `json:"audio_file"`
}

// wireSnapshot is the GET body. Pointer fields distinguish "missing" from
// a zero value.
type wireSnapshot struct {
	Data              map[string]wireReading `json:"data"`
	Volume            *float64               `json:"volume"`
	VolumeChangeIndex *int64                 `json:"volume_change_index"`
	VolumeChangerUUID *string                `json:"volume_changer_uuid"`
}

// wireVolumeSet is the POST body.
type wireVolumeSet struct {
	Volume            float64 `json:"volume"`
	VolumeChangerUUID string  `json:"volume_changer_uuid"`
}

// Snapshot is a validated point-in-time view of a room.
type Snapshot struct {
	Participants map[string]beat.Reading
	Volume       volume.State
}

// DecodeSnapshot decodes and validates a snapshot body. Failures are
// MALFORMED_SNAPSHOT errors.
func DecodeSnapshot(body []byte) (*Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, malformed("failed to decode snapshot", err)
	}
	snap, err := w.toSnapshot()
	if err != nil {
		return nil, malformed("invalid snapshot", err)
	}
	return snap, nil
}

// toSnapshot validates the wire body and converts it.
func (w *wireSnapshot) toSnapshot() (*Snapshot, error) {
	if w.Data == nil {
		return nil, fmt.Errorf("missing data")
	}
	if w.Volume == nil || math.IsNaN(*w.Volume) || math.IsInf(*w.Volume, 0) {
		return nil, fmt.Errorf("missing or invalid volume")
	}
	if w.VolumeChangeIndex == nil || *w.VolumeChangeIndex < 0 {
		return nil, fmt.Errorf("missing or invalid volume_change_index")
	}
	if w.VolumeChangerUUID == nil {
		return nil, fmt.Errorf("missing volume_changer_uuid")
	}

	participants := make(map[string]beat.Reading, len(w.Data))
	for id, r := range w.Data {
		if r.HR == nil {
			return nil, fmt.Errorf("participant %q: missing hr", id)
		}
		hr := *r.HR
		if hr < 0 || math.IsNaN(hr) || math.IsInf(hr, 0) {
			return nil, fmt.Errorf("participant %q: invalid hr %v", id, hr)
		}
		participants[id] = beat.Reading{BPM: hr, CueID: r.AudioFile}
	}

	return &Snapshot{
		Participants: participants,
		Volume: volume.State{
			LevelDB:        *w.Volume,
			ChangeIndex:    *w.VolumeChangeIndex,
			OriginDeviceID: *w.VolumeChangerUUID,
		},
	}, nil
}
