package beat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ReconcileAddsParticipants(t *testing.T) {
	r := NewRegistry("")

	ch := r.Reconcile(map[string]Reading{
		"p1": {BPM: 60, CueID: "a"},
		"p2": {BPM: 80},
	})

	assert.Equal(t, []string{"p1", "p2"}, ch.Joined)
	assert.Empty(t, ch.Left)
	assert.Equal(t, 2, r.Len())

	p2, ok := r.Get("p2")
	require.True(t, ok)
	assert.Equal(t, DefaultCue, p2.CueID, "missing cue falls back to default")
	assert.Equal(t, 0.0, p2.Phase)
}

func TestRegistry_CustomDefaultCue(t *testing.T) {
	r := NewRegistry("beep.wav")
	r.Reconcile(map[string]Reading{"p1": {BPM: 60}})

	p1, ok := r.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "beep.wav", p1.CueID)
}

func TestRegistry_ReconcileEmptyClearsEverything(t *testing.T) {
	r := NewRegistry("")
	r.Reconcile(map[string]Reading{"p1": {BPM: 60}, "p2": {BPM: 90}})

	ch := r.Reconcile(map[string]Reading{})
	assert.Equal(t, []string{"p1", "p2"}, ch.Left)
	assert.Equal(t, 0, r.Len())

	// Idempotent removal.
	ch = r.Reconcile(map[string]Reading{})
	assert.True(t, ch.Empty())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ReconcilePreservesPhase(t *testing.T) {
	r := NewRegistry("")
	incoming := map[string]Reading{"p1": {BPM: 60, CueID: "a"}}
	r.Reconcile(incoming)

	for i := 0; i < 5; i++ {
		r.Tick(50 * time.Millisecond)
	}
	before, _ := r.Get("p1")
	require.InDelta(t, 0.25, before.Phase, 1e-9)

	ch := r.Reconcile(incoming)
	assert.True(t, ch.Empty(), "identical snapshot changes nothing")

	after, _ := r.Get("p1")
	assert.Equal(t, before.Phase, after.Phase)
}

func TestRegistry_BPMChangeKeepsPhaseAndChangesRate(t *testing.T) {
	r := NewRegistry("")
	r.Reconcile(map[string]Reading{"p1": {BPM: 60, CueID: "a"}})
	for i := 0; i < 10; i++ {
		r.Tick(50 * time.Millisecond)
	}

	ch := r.Reconcile(map[string]Reading{"p1": {BPM: 120, CueID: "b"}})
	assert.Equal(t, []string{"p1"}, ch.Updated)

	p1, _ := r.Get("p1")
	assert.InDelta(t, 0.5, p1.Phase, 1e-9)
	assert.Equal(t, 120.0, p1.BPM)
	assert.Equal(t, "b", p1.CueID)

	// Remaining half beat at 120 bpm takes 250ms.
	var triggers []Trigger
	for i := 0; i < 5; i++ {
		triggers = append(triggers, r.Tick(50*time.Millisecond)...)
	}
	require.Len(t, triggers, 1)
	assert.Equal(t, Trigger{ParticipantID: "p1", CueID: "b"}, triggers[0])
}

func TestRegistry_RemovedAndReaddedStartsFresh(t *testing.T) {
	r := NewRegistry("")
	r.Reconcile(map[string]Reading{"p1": {BPM: 60}})
	r.Tick(500 * time.Millisecond)

	r.Reconcile(map[string]Reading{"p2": {BPM: 60}})
	_, ok := r.Get("p1")
	assert.False(t, ok)

	ch := r.Reconcile(map[string]Reading{"p1": {BPM: 60}, "p2": {BPM: 60}})
	assert.Equal(t, []string{"p1"}, ch.Joined)
	p1, _ := r.Get("p1")
	assert.Equal(t, 0.0, p1.Phase)
}

func TestRegistry_TickEmitsTriggersInIDOrder(t *testing.T) {
	r := NewRegistry("")
	r.Reconcile(map[string]Reading{
		"zed":   {BPM: 60, CueID: "z"},
		"alpha": {BPM: 60, CueID: "a"},
		"idle":  {BPM: 0, CueID: "i"},
	})

	triggers := r.Tick(time.Second)
	assert.Equal(t, []Trigger{
		{ParticipantID: "alpha", CueID: "a"},
		{ParticipantID: "zed", CueID: "z"},
	}, triggers)
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry("")
	r.Reconcile(map[string]Reading{"b": {BPM: 60}, "a": {BPM: 70}})

	removed := r.Reset()
	assert.Equal(t, []string{"a", "b"}, removed)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Tick(time.Second))
}

func TestRegistry_Views(t *testing.T) {
	r := NewRegistry("")
	r.Reconcile(map[string]Reading{"b": {BPM: 60, CueID: "x"}, "a": {BPM: 70, CueID: "y"}})

	views := r.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].ID)
	assert.Equal(t, 70.0, views[0].BPM)
	assert.Equal(t, "b", views[1].ID)
}
