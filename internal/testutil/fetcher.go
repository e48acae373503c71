package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/thebeat/internal/transport"
)

// ErrScriptExhausted is returned once every scripted response was used.
var ErrScriptExhausted = errors.New("scripted fetcher: no responses left")

// FetchResponse is one scripted fetch outcome.
type FetchResponse struct {
	Snapshot *transport.Snapshot
	Err      error
}

// ScriptedFetcher returns scripted responses in order. Once the script
// runs out, a sticky fetcher keeps repeating the last response and any
// other fetcher fails with ErrScriptExhausted.
type ScriptedFetcher struct {
	mu        sync.Mutex
	responses []FetchResponse
	rooms     []string
	sticky    bool
}

// NewScriptedFetcher creates a fetcher that replays responses once and
// then fails with ErrScriptExhausted.
func NewScriptedFetcher(responses ...FetchResponse) *ScriptedFetcher {
	return &ScriptedFetcher{responses: responses}
}

// NewStickyFetcher creates a fetcher that repeats its last response
// forever.
func NewStickyFetcher(responses ...FetchResponse) *ScriptedFetcher {
	return &ScriptedFetcher{responses: responses, sticky: true}
}

// FetchSnapshot implements session.Fetcher.
func (f *ScriptedFetcher) FetchSnapshot(ctx context.Context, room string) (*transport.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.rooms = append(f.rooms, room)
	if len(f.responses) == 0 {
		return nil, ErrScriptExhausted
	}

	r := f.responses[0]
	if len(f.responses) > 1 || !f.sticky {
		f.responses = f.responses[1:]
	}
	return r.Snapshot, r.Err
}

// Calls returns the number of fetches made so far.
func (f *ScriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rooms)
}

// Rooms returns the room argument of every fetch.
func (f *ScriptedFetcher) Rooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rooms...)
}
