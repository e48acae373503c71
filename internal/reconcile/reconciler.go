// Package reconcile keeps the local participant set and shared volume in
// step with periodically fetched room snapshots.
//
// Fetches are unreliable. Each failure bumps a miss counter; once the
// counter reaches the threshold the participant set is hard-reset so a
// prolonged outage does not keep sounding stale participants. Polling
// never backs off: only the consequence of a failure streak changes.
package reconcile

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/roach88/thebeat/internal/beat"
	"github.com/roach88/thebeat/internal/transport"
	"github.com/roach88/thebeat/internal/volume"
)

// DefaultMissThreshold is the number of consecutive failed polls that
// forces a registry reset.
const DefaultMissThreshold = 10

// errNoSnapshot stands in for a fetch that returned neither a snapshot nor
// an error.
var errNoSnapshot = errors.New("fetch returned no snapshot")

// State is the polling state.
type State int

const (
	// StateIdle means no polls are issued and late results are dropped.
	StateIdle State = iota
	// StatePolling means polls are issued on every poll tick.
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Outcome describes what a poll result did.
type Outcome int

const (
	// OutcomeApplied means the snapshot was reconciled.
	OutcomeApplied Outcome = iota + 1
	// OutcomeMissed means the poll failed below the threshold, or at it
	// after the reset already happened.
	OutcomeMissed
	// OutcomeReset means this failure reached the threshold and the
	// registry was emptied.
	OutcomeReset
	// OutcomeStale means the result belonged to an earlier polling run or
	// arrived while idle, and was ignored.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeMissed:
		return "missed"
	case OutcomeReset:
		return "reset"
	case OutcomeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Result reports the effect of one Apply call.
type Result struct {
	Outcome   Outcome
	MissCount int

	// Changes is set for OutcomeApplied.
	Changes beat.Changes

	// Removed lists the participants dropped by a reset.
	Removed []string

	// VolumeApplied is true when the snapshot overwrote the local level.
	VolumeApplied bool

	// Err is the fetch failure for OutcomeMissed and OutcomeReset.
	Err error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMissThreshold overrides DefaultMissThreshold. Values below 1 are
// ignored.
func WithMissThreshold(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// Reconciler drives a Registry and a volume Sync from poll results.
//
// Not safe for concurrent use; the session event loop owns it.
type Reconciler struct {
	registry   *beat.Registry
	volume     *volume.Sync
	threshold  int
	missCount  int
	state      State
	generation uint64
	requests   uint64
	latest     uint64
	logger     zerolog.Logger
}

// New creates an idle Reconciler.
func New(registry *beat.Registry, vol *volume.Sync, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry:  registry,
		volume:    vol,
		threshold: DefaultMissThreshold,
		state:     StateIdle,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start enters the polling state. Returns false if already polling.
func (r *Reconciler) Start() bool {
	if r.state == StatePolling {
		return false
	}
	r.state = StatePolling
	r.generation++
	r.logger.Debug().Uint64("generation", r.generation).Msg("polling started")
	return true
}

// Stop leaves the polling state. Results of fetches issued before Stop are
// ignored from now on. Returns false if already idle.
func (r *Reconciler) Stop() bool {
	if r.state == StateIdle {
		return false
	}
	r.state = StateIdle
	r.generation++
	r.logger.Debug().Uint64("generation", r.generation).Msg("polling stopped")
	return true
}

// State returns the current polling state.
func (r *Reconciler) State() State {
	return r.state
}

// Polling reports whether the reconciler is in the polling state.
func (r *Reconciler) Polling() bool {
	return r.state == StatePolling
}

// Generation identifies the current polling run. Fetches are tagged with
// it so that results issued before a Stop can be recognized.
func (r *Reconciler) Generation() uint64 {
	return r.generation
}

// Issue numbers a new fetch. Results are passed back through ApplyRequest
// with this number so that a slow fetch cannot overwrite a newer one.
func (r *Reconciler) Issue() uint64 {
	r.requests++
	return r.requests
}

// MissCount returns the number of consecutive failed polls, capped at the
// threshold.
func (r *Reconciler) MissCount() int {
	return r.missCount
}

// Threshold returns the miss threshold.
func (r *Reconciler) Threshold() int {
	return r.threshold
}

// Apply folds the result of a fetch issued during generation gen.
//
// A snapshot resets the miss count, reconciles the registry and feeds the
// volume fields to the volume Sync. An error, or a nil snapshot, counts as
// a miss; the miss that reaches the threshold empties the registry.
func (r *Reconciler) Apply(gen uint64, snap *transport.Snapshot, err error) Result {
	return r.ApplyRequest(gen, 0, snap, err)
}

// ApplyRequest is Apply for the fetch numbered req by Issue. A result whose
// number is not above the newest one already folded is stale. Request 0 is
// unnumbered and skips that check.
func (r *Reconciler) ApplyRequest(gen, req uint64, snap *transport.Snapshot, err error) Result {
	if r.state != StatePolling || gen != r.generation {
		r.logger.Debug().
			Uint64("generation", gen).
			Uint64("current_generation", r.generation).
			Msg("dropping stale poll result")
		return Result{Outcome: OutcomeStale, MissCount: r.missCount}
	}
	if req != 0 {
		if req <= r.latest {
			r.logger.Debug().
				Uint64("request", req).
				Uint64("latest_request", r.latest).
				Msg("dropping superseded poll result")
			return Result{Outcome: OutcomeStale, MissCount: r.missCount}
		}
		r.latest = req
	}

	if err == nil && snap == nil {
		err = errNoSnapshot
	}
	if err != nil {
		return r.miss(err)
	}

	r.missCount = 0
	changes := r.registry.Reconcile(snap.Participants)
	applied := r.volume.Observe(snap.Volume)

	return Result{
		Outcome:       OutcomeApplied,
		Changes:       changes,
		VolumeApplied: applied,
	}
}

func (r *Reconciler) miss(err error) Result {
	if r.missCount >= r.threshold {
		r.logger.Debug().Err(err).Int("miss_count", r.missCount).Msg("poll failed")
		return Result{Outcome: OutcomeMissed, MissCount: r.missCount, Err: err}
	}

	r.missCount++
	if r.missCount < r.threshold {
		r.logger.Warn().Err(err).Int("miss_count", r.missCount).Msg("poll failed")
		return Result{Outcome: OutcomeMissed, MissCount: r.missCount, Err: err}
	}

	removed := r.registry.Reset()
	r.logger.Error().
		Err(err).
		Int("miss_count", r.missCount).
		Int("removed", len(removed)).
		Msg("miss threshold reached, participants reset")
	return Result{Outcome: OutcomeReset, MissCount: r.missCount, Removed: removed, Err: err}
}
