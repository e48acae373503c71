package session

import (
	"context"

	"github.com/roach88/thebeat/internal/beat"
	"github.com/roach88/thebeat/internal/store"
	"github.com/roach88/thebeat/internal/transport"
)

// Display receives the values a UI would render. Calls happen on the Run
// loop goroutine and must not block.
type Display interface {
	// VolumeChanged is called after a remote overwrite or a local edit.
	VolumeChanged(levelDB float64)
	// ParticipantsChanged is called after a reconcile that joined, removed
	// or updated participants, and after a reset.
	ParticipantsChanged(views []beat.View)
}

// Journal persists session events. *store.Store implements it.
type Journal interface {
	Append(ctx context.Context, e store.Entry) error
}

type nopDisplay struct{}

func (nopDisplay) VolumeChanged(float64)          {}
func (nopDisplay) ParticipantsChanged([]beat.View) {}

type nopJournal struct{}

func (nopJournal) Append(context.Context, store.Entry) error { return nil }

// Fetcher retrieves a room snapshot. *transport.Client implements it.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, room string) (*transport.Snapshot, error)
}
