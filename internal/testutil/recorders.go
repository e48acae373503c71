package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/thebeat/internal/audio"
	"github.com/roach88/thebeat/internal/beat"
	"github.com/roach88/thebeat/internal/volume"
)

// Play is one recorded cue playback.
type Play struct {
	CueID string
	Gain  float64
}

// RecordingOutput is an audio.Output that records plays instead of
// producing sound. Resources are the cue ids themselves.
type RecordingOutput struct {
	mu       sync.Mutex
	failLoad map[string]error
	plays    []Play
}

// NewRecordingOutput creates an output. failLoad maps cue ids to the
// error LoadCue returns for them.
func NewRecordingOutput(failLoad map[string]error) *RecordingOutput {
	return &RecordingOutput{failLoad: failLoad}
}

// LoadCue implements audio.Output.
func (o *RecordingOutput) LoadCue(_ context.Context, id string) (audio.Resource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.failLoad[id]; ok {
		return nil, err
	}
	return id, nil
}

// Play implements audio.Output.
func (o *RecordingOutput) Play(res audio.Resource, gain float64) error {
	id, ok := res.(string)
	if !ok {
		return fmt.Errorf("recording output: unexpected resource %T", res)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plays = append(o.plays, Play{CueID: id, Gain: gain})
	return nil
}

// Plays returns a copy of the recorded plays.
func (o *RecordingOutput) Plays() []Play {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Play(nil), o.plays...)
}

// RecordingSender is a volume.Sender that records commands. Err, when
// set, is returned from every send.
type RecordingSender struct {
	mu   sync.Mutex
	sent []volume.Command
	Err  error
}

// SendVolume implements volume.Sender.
func (s *RecordingSender) SendVolume(_ context.Context, cmd volume.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, cmd)
	return s.Err
}

// Sent returns a copy of the recorded commands.
func (s *RecordingSender) Sent() []volume.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]volume.Command(nil), s.sent...)
}

// RecordingDisplay records display callbacks.
type RecordingDisplay struct {
	mu           sync.Mutex
	levels       []float64
	participants [][]beat.View
}

// VolumeChanged implements session.Display.
func (d *RecordingDisplay) VolumeChanged(levelDB float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels = append(d.levels, levelDB)
}

// ParticipantsChanged implements session.Display.
func (d *RecordingDisplay) ParticipantsChanged(views []beat.View) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants = append(d.participants, append([]beat.View(nil), views...))
}

// Levels returns every level passed to VolumeChanged.
func (d *RecordingDisplay) Levels() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.levels...)
}

// LastParticipants returns the most recent participant list, or nil.
func (d *RecordingDisplay) LastParticipants() []beat.View {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.participants) == 0 {
		return nil
	}
	return d.participants[len(d.participants)-1]
}

// ParticipantUpdates returns how many times ParticipantsChanged was called.
func (d *RecordingDisplay) ParticipantUpdates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.participants)
}

// Inline runs fn on the calling goroutine. Pass it as a volume dispatch
// function to make sends synchronous.
func Inline(fn func()) { fn() }
