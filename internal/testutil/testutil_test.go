package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thebeat/internal/transport"
	"github.com/roach88/thebeat/internal/volume"
)

func TestScriptedFetcher_ReplaysThenExhausts(t *testing.T) {
	snap := &transport.Snapshot{}
	boom := errors.New("boom")
	f := NewScriptedFetcher(FetchResponse{Snapshot: snap}, FetchResponse{Err: boom})
	ctx := context.Background()

	got, err := f.FetchSnapshot(ctx, "r")
	require.NoError(t, err)
	assert.Same(t, snap, got)

	_, err = f.FetchSnapshot(ctx, "r")
	assert.ErrorIs(t, err, boom)

	_, err = f.FetchSnapshot(ctx, "r")
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 3, f.Calls())
	assert.Equal(t, []string{"r", "r", "r"}, f.Rooms())
}

func TestScriptedFetcher_StickyRepeatsLast(t *testing.T) {
	snap := &transport.Snapshot{}
	f := NewStickyFetcher(FetchResponse{Snapshot: snap})

	for i := 0; i < 3; i++ {
		got, err := f.FetchSnapshot(context.Background(), "r")
		require.NoError(t, err)
		assert.Same(t, snap, got)
	}
}

func TestScriptedFetcher_CancelledContext(t *testing.T) {
	f := NewStickyFetcher(FetchResponse{Snapshot: &transport.Snapshot{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchSnapshot(ctx, "r")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.Calls())
}

func TestRecordingOutput(t *testing.T) {
	bad := errors.New("bad wav")
	o := NewRecordingOutput(map[string]error{"bad.wav": bad})

	res, err := o.LoadCue(context.Background(), "a.wav")
	require.NoError(t, err)
	require.NoError(t, o.Play(res, 0.5))

	_, err = o.LoadCue(context.Background(), "bad.wav")
	assert.ErrorIs(t, err, bad)

	assert.Error(t, o.Play(42, 1))
	assert.Equal(t, []Play{{CueID: "a.wav", Gain: 0.5}}, o.Plays())
}

func TestRecordingSender(t *testing.T) {
	s := &RecordingSender{}
	cmd := volume.Command{LevelDB: -3, OriginDeviceID: DeviceID}
	require.NoError(t, s.SendVolume(context.Background(), cmd))
	assert.Equal(t, []volume.Command{cmd}, s.Sent())
}

func TestRecordingDisplay(t *testing.T) {
	d := &RecordingDisplay{}
	assert.Nil(t, d.LastParticipants())

	d.VolumeChanged(-6)
	d.ParticipantsChanged(nil)
	assert.Equal(t, []float64{-6}, d.Levels())
	assert.Equal(t, 1, d.ParticipantUpdates())
}
