// Package volume keeps one room-wide volume level consistent across many
// viewers.
//
// Every device may edit the level. Edits are applied locally at once and
// sent to the server, which stamps them with the next change index and the
// editing device's id. Snapshots echo that (index, level, origin) triple
// back to every viewer. A viewer adopts a remote level only when the index
// is new AND the edit came from another device, so an author's own
// in-flight edits never snap the control back to an older value.
package volume

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// DefaultLevelDB matches the server's initial room volume.
const DefaultLevelDB = -10.0

// noIndex marks that no change index has been observed yet.
const noIndex int64 = -1

// ErrInvalidLevel is returned by SetLocal for NaN or infinite levels.
var ErrInvalidLevel = errors.New("volume level must be a finite number")

// State is the room's shared volume as reported by a snapshot.
type State struct {
	LevelDB        float64
	ChangeIndex    int64
	OriginDeviceID string
}

// Command is a volume-set request sent to the server.
type Command struct {
	LevelDB        float64
	OriginDeviceID string
}

// Sender delivers volume-set commands. Delivery failures are logged by
// Sync and never retried.
type Sender interface {
	SendVolume(ctx context.Context, cmd Command) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, cmd Command) error

// SendVolume calls f.
func (f SenderFunc) SendVolume(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// Option configures a Sync.
type Option func(*Sync)

// WithInitialLevel sets the level used until the first remote observation.
func WithInitialLevel(db float64) Option {
	return func(s *Sync) {
		s.level = db
	}
}

// WithOffsets sets the per-cue offset table.
func WithOffsets(o Offsets) Option {
	return func(s *Sync) {
		s.offsets = o.Clone()
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sync) {
		s.logger = l
	}
}

// WithOnChange registers a callback invoked whenever the displayed level
// changes, either from a local edit or from a foreign remote edit.
func WithOnChange(fn func(levelDB float64)) Option {
	return func(s *Sync) {
		s.onChange = fn
	}
}

// WithDispatch replaces the goroutine launcher used for sending commands.
// Tests use it to run sends inline.
func WithDispatch(fn func(func())) Option {
	return func(s *Sync) {
		s.dispatch = fn
	}
}

// Sync resolves the shared volume level for one local device.
//
// Not safe for concurrent use; the session event loop is the only caller.
type Sync struct {
	deviceID  string
	level     float64
	lastIndex int64
	offsets   Offsets
	sender    Sender
	logger    zerolog.Logger
	onChange  func(float64)
	dispatch  func(func())
}

// NewSync creates a Sync for the given local device id.
func NewSync(deviceID string, sender Sender, opts ...Option) *Sync {
	s := &Sync{
		deviceID:  deviceID,
		level:     DefaultLevelDB,
		lastIndex: noIndex,
		offsets:   DefaultOffsets(),
		sender:    sender,
		logger:    zerolog.Nop(),
		dispatch:  func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe folds a remote volume state into the local one and reports
// whether the local level was overwritten.
//
// An index equal to the last one seen is a no-op. A new index is always
// recorded; the level is adopted only when the origin is another device,
// even if the value is numerically unchanged.
func (s *Sync) Observe(remote State) bool {
	if remote.ChangeIndex == s.lastIndex {
		return false
	}
	s.lastIndex = remote.ChangeIndex

	if remote.OriginDeviceID == s.deviceID {
		return false
	}

	s.level = remote.LevelDB
	s.notify()
	return true
}

// SetLocal applies a local edit immediately and sends it to the server in
// the background. The change index is left to the server.
func (s *Sync) SetLocal(ctx context.Context, levelDB float64) error {
	if math.IsNaN(levelDB) || math.IsInf(levelDB, 0) {
		return fmt.Errorf("set local volume %v: %w", levelDB, ErrInvalidLevel)
	}

	s.level = levelDB
	s.notify()

	if s.sender == nil {
		return nil
	}

	cmd := Command{LevelDB: levelDB, OriginDeviceID: s.deviceID}
	sender := s.sender
	logger := s.logger
	s.dispatch(func() {
		if err := sender.SendVolume(ctx, cmd); err != nil {
			logger.Warn().
				Err(err).
				Float64("level_db", cmd.LevelDB).
				Msg("volume-set delivery failed")
		}
	})
	return nil
}

// GainFor returns the linear gain for cueID at the current level.
func (s *Sync) GainFor(cueID string) float64 {
	return GainFor(s.level, cueID, s.offsets)
}

// SetOffsets replaces the per-cue offset table.
func (s *Sync) SetOffsets(o Offsets) {
	s.offsets = o.Clone()
}

// Level returns the current local level in dB.
func (s *Sync) Level() float64 {
	return s.level
}

// LastChangeIndex returns the last observed change index, or -1 if none.
func (s *Sync) LastChangeIndex() int64 {
	return s.lastIndex
}

// DeviceID returns the local device id.
func (s *Sync) DeviceID() string {
	return s.deviceID
}

func (s *Sync) notify() {
	if s.onChange != nil {
		s.onChange(s.level)
	}
}
