package harness

import (
	"github.com/roach88/thebeat/internal/store"
	"github.com/roach88/thebeat/internal/volume"
)

// Trace event types.
const (
	EventPoll    = "poll"
	EventTrigger = "trigger"
	EventVolume  = "volume"
	EventAction  = "action"
)

// TraceEvent is one observable effect of a run, stamped with the virtual
// time it happened at and a strictly increasing seq.
//
// Levels and gains are pre-formatted strings because the golden encoding
// forbids floats.
type TraceEvent struct {
	Type string `json:"type"`
	AtMS int64  `json:"at_ms"`
	Seq  int64  `json:"seq"`

	// poll
	Outcome       string   `json:"outcome,omitempty"`
	MissCount     int      `json:"miss_count"`
	Joined        []string `json:"joined,omitempty"`
	Left          []string `json:"left,omitempty"`
	Removed       []string `json:"removed,omitempty"`
	VolumeApplied bool     `json:"volume_applied,omitempty"`

	// trigger
	Participant string `json:"participant,omitempty"`
	Cue         string `json:"cue,omitempty"`
	Gain        string `json:"gain,omitempty"`

	// volume and action
	LevelDB string `json:"level_db,omitempty"`
	Action  string `json:"action,omitempty"`
}

// Final is the session state after the last virtual instant.
type Final struct {
	Participants []string
	VolumeLevel  float64
	MissCount    int
	Polling      bool
	Sent         []volume.Command
	Journal      []store.Kind
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every effect in the order it happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final session state used by the assertions.
	State Final `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns the number of trace events of the given type.
func (r *Result) Count(eventType string) int {
	n := 0
	for _, e := range r.Trace {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
