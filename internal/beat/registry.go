package beat

import (
	"sort"
	"time"
)

// DefaultCue is the cue played for participants whose snapshot entry does
// not name one.
const DefaultCue = "heart-beat.wav"

// Reading is one participant's entry in a room snapshot.
type Reading struct {
	BPM   float64
	CueID string
}

// Trigger is emitted by Tick for every participant whose clock crossed a
// beat boundary.
type Trigger struct {
	ParticipantID string
	CueID         string
}

// View is a read-only copy of a participant's state.
type View struct {
	ID    string
	BPM   float64
	CueID string
	Phase float64
}

// Changes summarizes what a Reconcile call did to the participant set.
type Changes struct {
	Joined  []string
	Left    []string
	Updated []string
}

// Empty reports whether the reconcile changed nothing at all.
func (c Changes) Empty() bool {
	return len(c.Joined) == 0 && len(c.Left) == 0 && len(c.Updated) == 0
}

type participant struct {
	bpm   float64
	cueID string
	clock *PhaseClock
}

// Registry maps participant ids to their heart rate, cue and PhaseClock.
type Registry struct {
	participants map[string]*participant
	defaultCue   string
}

// NewRegistry creates an empty registry. An empty defaultCue falls back to
// DefaultCue.
func NewRegistry(defaultCue string) *Registry {
	if defaultCue == "" {
		defaultCue = DefaultCue
	}
	return &Registry{
		participants: make(map[string]*participant),
		defaultCue:   defaultCue,
	}
}

// Reconcile makes the participant set equal to the ids in incoming.
//
// New ids get a fresh clock at phase 0. Retained ids keep their phase and
// only have bpm and cue rewritten, so a BPM change alters the rate of
// future accumulation without resetting timing. Ids missing from incoming
// are dropped together with their clock.
func (r *Registry) Reconcile(incoming map[string]Reading) Changes {
	var ch Changes

	for id, reading := range incoming {
		cue := reading.CueID
		if cue == "" {
			cue = r.defaultCue
		}

		p, ok := r.participants[id]
		if !ok {
			r.participants[id] = &participant{
				bpm:   reading.BPM,
				cueID: cue,
				clock: NewPhaseClock(),
			}
			ch.Joined = append(ch.Joined, id)
			continue
		}

		if p.bpm != reading.BPM || p.cueID != cue {
			ch.Updated = append(ch.Updated, id)
		}
		p.bpm = reading.BPM
		p.cueID = cue
	}

	for id := range r.participants {
		if _, ok := incoming[id]; !ok {
			delete(r.participants, id)
			ch.Left = append(ch.Left, id)
		}
	}

	sort.Strings(ch.Joined)
	sort.Strings(ch.Left)
	sort.Strings(ch.Updated)
	return ch
}

// Reset drops every participant and its phase. Returns the removed ids.
func (r *Registry) Reset() []string {
	ids := r.IDs()
	r.participants = make(map[string]*participant)
	return ids
}

// Tick advances every clock by dt and returns one Trigger per clock that
// crossed a beat boundary, ordered by participant id.
func (r *Registry) Tick(dt time.Duration) []Trigger {
	var triggers []Trigger
	for _, id := range r.IDs() {
		p := r.participants[id]
		if p.clock.Advance(dt, p.bpm) {
			triggers = append(triggers, Trigger{ParticipantID: id, CueID: p.cueID})
		}
	}
	return triggers
}

// Len returns the number of participants.
func (r *Registry) Len() int {
	return len(r.participants)
}

// IDs returns the participant ids in ascending order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns a copy of one participant's state.
func (r *Registry) Get(id string) (View, bool) {
	p, ok := r.participants[id]
	if !ok {
		return View{}, false
	}
	return View{ID: id, BPM: p.bpm, CueID: p.cueID, Phase: p.clock.Phase()}, true
}

// Views returns copies of all participants ordered by id.
func (r *Registry) Views() []View {
	views := make([]View, 0, len(r.participants))
	for _, id := range r.IDs() {
		v, _ := r.Get(id)
		views = append(views, v)
	}
	return views
}
