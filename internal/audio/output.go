// Package audio plays cues on behalf of the session.
//
// An Output is the platform collaborator: it loads named cue resources and
// plays one at a linear gain. The Bank preloads every known cue once,
// resolves cue ids to resources, and turns playback off for the rest of
// the session when the platform cannot produce audio. Playback failures
// are logged and never reach the caller, so a broken audio device cannot
// stop the poll/step loop.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable reports that the platform cannot produce audio at all.
var ErrUnavailable = errors.New("audio output unavailable")

// Resource is an opaque, loaded cue.
type Resource any

// Output is the audio subsystem the session plays cues through.
type Output interface {
	// LoadCue loads the named cue. Errors wrapping ErrUnavailable disable
	// playback entirely; other errors only make that cue unavailable.
	LoadCue(ctx context.Context, id string) (Resource, error)

	// Play starts the resource at the given linear gain and returns
	// without waiting for it to finish.
	Play(res Resource, gain float64) error
}

// UnavailableError wraps ErrUnavailable with the cue being handled when
// the failure surfaced.
type UnavailableError struct {
	Cue string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Cue == "" {
		return fmt.Sprintf("%v: %v", ErrUnavailable, e.Err)
	}
	return fmt.Sprintf("%v (cue=%s): %v", ErrUnavailable, e.Cue, e.Err)
}

// Unwrap returns both the sentinel and the cause so errors.Is matches
// either.
func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}
