package volume

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	cmds []Command
	err  error
}

func (r *recordingSender) SendVolume(_ context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func (r *recordingSender) sent() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

func inline(fn func()) { fn() }

func TestSync_Defaults(t *testing.T) {
	s := NewSync("me", nil)
	assert.Equal(t, DefaultLevelDB, s.Level())
	assert.Equal(t, int64(-1), s.LastChangeIndex())
	assert.Equal(t, "me", s.DeviceID())
}

func TestSync_ObserveForeignOverwrites(t *testing.T) {
	var labels []float64
	s := NewSync("me", nil, WithOnChange(func(db float64) { labels = append(labels, db) }))

	applied := s.Observe(State{LevelDB: -6, ChangeIndex: 5, OriginDeviceID: "X"})
	assert.True(t, applied)
	assert.Equal(t, -6.0, s.Level())
	assert.Equal(t, int64(5), s.LastChangeIndex())
	assert.Equal(t, []float64{-6}, labels)
}

func TestSync_ObserveFirstSnapshotAtIndexZero(t *testing.T) {
	s := NewSync("me", nil, WithInitialLevel(-20))
	assert.True(t, s.Observe(State{LevelDB: -10, ChangeIndex: 0, OriginDeviceID: "server-default"}))
	assert.Equal(t, -10.0, s.Level())
}

func TestSync_ObserveSameIndexIsNoop(t *testing.T) {
	s := NewSync("me", nil)
	s.Observe(State{LevelDB: -6, ChangeIndex: 5, OriginDeviceID: "X"})

	applied := s.Observe(State{LevelDB: -30, ChangeIndex: 5, OriginDeviceID: "Y"})
	assert.False(t, applied)
	assert.Equal(t, -6.0, s.Level())
}

func TestSync_ObserveOwnOriginNeverOverwrites(t *testing.T) {
	levels := []float64{-40, -10, 0, 6, -6}
	for i, remote := range levels {
		s := NewSync("me", nil, WithInitialLevel(-3))
		applied := s.Observe(State{LevelDB: remote, ChangeIndex: int64(i + 1), OriginDeviceID: "me"})
		assert.False(t, applied)
		assert.Equal(t, -3.0, s.Level())
		assert.Equal(t, int64(i+1), s.LastChangeIndex(), "index is still recorded")
	}
}

func TestSync_ObserveEqualValueNewIndexStillApplies(t *testing.T) {
	calls := 0
	s := NewSync("me", nil, WithOnChange(func(float64) { calls++ }))
	s.Observe(State{LevelDB: -6, ChangeIndex: 1, OriginDeviceID: "X"})

	applied := s.Observe(State{LevelDB: -6, ChangeIndex: 2, OriginDeviceID: "X"})
	assert.True(t, applied)
	assert.Equal(t, 2, calls)
}

func TestSync_SetLocalAppliesAndSends(t *testing.T) {
	sender := &recordingSender{}
	var labels []float64
	s := NewSync("me", sender,
		WithDispatch(inline),
		WithOnChange(func(db float64) { labels = append(labels, db) }),
	)

	require.NoError(t, s.SetLocal(context.Background(), -12))
	assert.Equal(t, -12.0, s.Level())
	assert.Equal(t, []float64{-12}, labels)
	assert.Equal(t, []Command{{LevelDB: -12, OriginDeviceID: "me"}}, sender.sent())
	assert.Equal(t, int64(-1), s.LastChangeIndex(), "change index is not predicted")
}

func TestSync_SetLocalThenOwnEchoDoesNotSnapBack(t *testing.T) {
	s := NewSync("me", &recordingSender{}, WithDispatch(inline))
	s.Observe(State{LevelDB: -10, ChangeIndex: 3, OriginDeviceID: "X"})

	require.NoError(t, s.SetLocal(context.Background(), -4))
	require.NoError(t, s.SetLocal(context.Background(), -2))

	// Server echoes the first of our two edits.
	s.Observe(State{LevelDB: -4, ChangeIndex: 4, OriginDeviceID: "me"})
	assert.Equal(t, -2.0, s.Level())
}

func TestSync_SetLocalSendFailureIsAbsorbed(t *testing.T) {
	sender := &recordingSender{err: errors.New("connection refused")}
	s := NewSync("me", sender, WithDispatch(inline))

	require.NoError(t, s.SetLocal(context.Background(), -8))
	assert.Equal(t, -8.0, s.Level())
	assert.Len(t, sender.sent(), 1)
}

func TestSync_SetLocalAsyncByDefault(t *testing.T) {
	sender := &recordingSender{}
	s := NewSync("me", sender)

	require.NoError(t, s.SetLocal(context.Background(), -1))
	assert.Eventually(t, func() bool { return len(sender.sent()) == 1 }, timeout, tick)
}

func TestSync_SetLocalRejectsNonFinite(t *testing.T) {
	s := NewSync("me", nil)
	err := s.SetLocal(context.Background(), math.NaN())
	require.ErrorIs(t, err, ErrInvalidLevel)
	err = s.SetLocal(context.Background(), math.Inf(-1))
	require.ErrorIs(t, err, ErrInvalidLevel)
	assert.Equal(t, DefaultLevelDB, s.Level())
}

func TestSync_GainForUsesOffsets(t *testing.T) {
	s := NewSync("me", nil, WithInitialLevel(0))
	assert.InDelta(t, 1.0, s.GainFor("heart-beat.wav"), 1e-12)
	assert.InDelta(t, DBToLinear(-10), s.GainFor("beep.wav"), 1e-12)

	s.SetOffsets(Offsets{"heart-beat.wav": 6})
	assert.InDelta(t, DBToLinear(-6), s.GainFor("heart-beat.wav"), 1e-12)
	assert.InDelta(t, 1.0, s.GainFor("beep.wav"), 1e-12)
}
