package audio

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

// Bank holds the loaded cue resources for a session.
//
// Not safe for concurrent use; the session event loop owns it.
type Bank struct {
	output     Output
	defaultCue string
	resources  map[string]Resource
	disabled   bool
	logger     zerolog.Logger
}

// NewBank creates a bank that plays through output. A nil output yields a
// permanently disabled bank.
func NewBank(output Output, defaultCue string, logger zerolog.Logger) *Bank {
	return &Bank{
		output:     output,
		defaultCue: norm.NFC.String(defaultCue),
		resources:  make(map[string]Resource),
		disabled:   output == nil,
		logger:     logger,
	}
}

// Load loads every cue in ids. It must run once before polling starts.
//
// A cue that fails to load is skipped with a warning. If the output
// reports ErrUnavailable, or no cue loads at all, playback is disabled and
// an error wrapping ErrUnavailable is returned. The caller logs it and
// carries on without sound.
func (b *Bank) Load(ctx context.Context, ids []string) error {
	if b.output == nil {
		return &UnavailableError{Err: errors.New("no audio output configured")}
	}

	for _, id := range ids {
		key := norm.NFC.String(id)
		if _, ok := b.resources[key]; ok {
			continue
		}

		res, err := b.output.LoadCue(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				b.disable(err)
				return err
			}
			b.logger.Warn().Err(err).Str("cue_id", id).Msg("failed to load cue")
			continue
		}
		b.resources[key] = res
		b.logger.Debug().Str("cue_id", id).Msg("cue loaded")
	}

	if len(b.resources) == 0 {
		err := &UnavailableError{Err: fmt.Errorf("none of %d cues could be loaded", len(ids))}
		b.disable(err)
		return err
	}
	return nil
}

// Play plays cueID at gain. Unknown cues fall back to the default cue.
// Nothing is returned: failures are logged, and a failure wrapping
// ErrUnavailable turns playback off.
func (b *Bank) Play(cueID string, gain float64) {
	if b.disabled {
		return
	}

	res, ok := b.resources[norm.NFC.String(cueID)]
	if !ok {
		res, ok = b.resources[b.defaultCue]
	}
	if !ok {
		b.logger.Debug().Str("cue_id", cueID).Msg("no resource for cue")
		return
	}

	if err := b.output.Play(res, gain); err != nil {
		if errors.Is(err, ErrUnavailable) {
			b.disable(err)
			return
		}
		b.logger.Warn().Err(err).Str("cue_id", cueID).Msg("cue playback failed")
	}
}

// Enabled reports whether cues will be played.
func (b *Bank) Enabled() bool {
	return !b.disabled
}

// Loaded returns the ids of the loaded cues, sorted.
func (b *Bank) Loaded() []string {
	ids := make([]string, 0, len(b.resources))
	for id := range b.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Bank) disable(err error) {
	if b.disabled {
		return
	}
	b.disabled = true
	b.logger.Error().Err(err).Msg("audio disabled, continuing without sound")
}
