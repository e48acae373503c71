package harness

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/roach88/thebeat/internal/beat"
	"github.com/roach88/thebeat/internal/reconcile"
	"github.com/roach88/thebeat/internal/session"
	"github.com/roach88/thebeat/internal/store"
	"github.com/roach88/thebeat/internal/testutil"
	"github.com/roach88/thebeat/internal/volume"
)

// epoch is the wall time of virtual t=0. Journal timestamps are derived
// from it.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// pendingFetch is a scripted fetch whose result has not arrived yet.
type pendingFetch struct {
	result session.PollResult
	due    time.Duration
}

// Harness drives one Session through a scenario's virtual timeline.
//
// The session is never Run; the harness calls Drain, ApplyPoll and Step
// itself, so the same scenario always produces the same trace.
type Harness struct {
	scenario *Scenario
	session  *session.Session
	store    *store.Store
	clock    *clockwork.FakeClock
	seq      *session.Clock
	sender   *testutil.RecordingSender
	output   *testutil.RecordingOutput

	polls   []scriptedPoll
	next    int
	pending []pendingFetch
	now     time.Duration

	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory journal. An error means the
// scenario could not be executed at all; assertion failures are reported
// through Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	polls, err := expandPolls(scenario.Polls)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    clockwork.NewFakeClockAt(epoch),
		seq:      session.NewClock(),
		sender:   &testutil.RecordingSender{},
		output:   testutil.NewRecordingOutput(nil),
		polls:    polls,
		result:   NewResult(),
	}

	ctx := context.Background()
	if err := h.setup(ctx); err != nil {
		return nil, err
	}

	h.execute(ctx)

	final, err := h.final(ctx)
	if err != nil {
		return nil, err
	}
	h.result.State = final

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) setup(ctx context.Context) error {
	sc := h.scenario

	deviceID := sc.DeviceID
	if deviceID == "" {
		deviceID = testutil.DeviceID
	}

	opts := []session.Option{
		session.WithClock(h.clock),
		session.WithLogger(zerolog.Nop()),
		session.WithDeviceID(deviceID),
		session.WithSessionID(testutil.SessionID),
		session.WithIntervals(sc.PollInterval, sc.StepInterval),
		session.WithMissThreshold(sc.MissThreshold),
		session.WithSender(h.sender),
		session.WithVolumeDispatch(testutil.Inline),
		session.WithOutput(h.output),
		session.WithCues(beat.DefaultCue, append([]string{beat.DefaultCue}, cueIDs(h.polls)...)),
		session.WithJournal(h.store),
		session.WithDisplay(traceDisplay{h}),
	}
	if sc.InitialDB != nil {
		opts = append(opts, session.WithInitialLevel(*sc.InitialDB))
	}
	if sc.Offsets != nil {
		opts = append(opts, session.WithOffsets(volume.Offsets(sc.Offsets)))
	}

	// Fetches are scripted by the harness; the session's own fetcher is
	// never reached.
	h.session = session.New(sc.Name, testutil.NewScriptedFetcher(), opts...)

	if err := h.store.BeginSession(ctx, store.Session{
		ID:        h.session.ID(),
		Room:      h.session.Room(),
		DeviceID:  h.session.DeviceID(),
		StartedAt: epoch,
	}); err != nil {
		return fmt.Errorf("failed to begin journal session: %w", err)
	}

	if err := h.session.Prepare(ctx); err != nil {
		return fmt.Errorf("failed to preload cues: %w", err)
	}
	if err := h.session.Start(); err != nil {
		return err
	}
	h.session.Drain(ctx)
	return nil
}

// execute walks the timeline. At each instant: actions, then delayed
// results that are due in issue order, then the poll tick, then the step
// tick.
func (h *Harness) execute(ctx context.Context) {
	sc := h.scenario
	pollEvery, stepEvery := h.session.Intervals()

	actions := append([]Action(nil), sc.Actions...)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].At < actions[j].At })

	var (
		nextAction int
		nextPoll   time.Duration
		nextStep   = stepEvery
	)

	for {
		t := nextStep
		if nextPoll < t {
			t = nextPoll
		}
		if nextAction < len(actions) && actions[nextAction].At < t {
			t = actions[nextAction].At
		}
		if len(h.pending) > 0 && h.pending[0].due < t {
			t = h.pending[0].due
		}
		if t > sc.Duration {
			return
		}
		h.advanceTo(t)

		for nextAction < len(actions) && actions[nextAction].At == t {
			h.act(ctx, actions[nextAction])
			nextAction++
		}

		for len(h.pending) > 0 && h.pending[0].due == t {
			p := h.pending[0]
			h.pending = h.pending[1:]
			h.apply(ctx, p.result)
		}

		if nextPoll == t {
			h.pollTick(ctx)
			nextPoll += pollEvery
		}

		if nextStep == t {
			h.step()
			nextStep += stepEvery
		}
	}
}

func (h *Harness) advanceTo(t time.Duration) {
	if t > h.now {
		h.clock.Advance(t - h.now)
		h.now = t
	}
}

func (h *Harness) act(ctx context.Context, a Action) {
	ev := TraceEvent{Type: EventAction, Action: a.Kind()}
	if a.SetVolume != nil {
		ev.LevelDB = formatLevel(*a.SetVolume)
	}
	h.trace(ev)

	wasPolling := h.session.Polling()

	var err error
	switch {
	case a.SetVolume != nil:
		err = h.session.SetVolume(*a.SetVolume)
	case a.Stop:
		err = h.session.Stop()
	case a.Start:
		err = h.session.Start()
	case a.Offsets != nil:
		err = h.session.SetOffsets(volume.Offsets(a.Offsets))
	}
	if err != nil {
		h.result.AddError(fmt.Sprintf("action %s at %s: %v", a.Kind(), a.At, err))
		return
	}
	h.session.Drain(ctx)

	// A start fetches immediately instead of waiting for the next tick.
	if !wasPolling && h.session.Polling() {
		h.issue(ctx)
	}
}

// pollTick issues a fetch unless the session is idle or the script is
// used up. Outstanding fetches do not hold it back.
func (h *Harness) pollTick(ctx context.Context) {
	if !h.session.Polling() {
		return
	}
	h.issue(ctx)
}

// issue takes the next scripted entry. A delay of a full poll interval or
// more times out at one interval, the way a live fetch is bounded.
func (h *Harness) issue(ctx context.Context) {
	if h.next >= len(h.polls) {
		return
	}
	p := h.polls[h.next]
	h.next++

	r := h.session.Issue()
	r.Snapshot, r.Err = p.snapshot, p.err
	if p.delay == 0 {
		h.apply(ctx, r)
		return
	}

	delay := p.delay
	if pollEvery, _ := h.session.Intervals(); delay >= pollEvery {
		r.Snapshot, r.Err = nil, context.DeadlineExceeded
		delay = pollEvery
	}
	h.pending = append(h.pending, pendingFetch{result: r, due: h.now + delay})
	sort.SliceStable(h.pending, func(i, j int) bool { return h.pending[i].due < h.pending[j].due })
}

func (h *Harness) apply(ctx context.Context, r session.PollResult) {
	res := h.session.ApplyPoll(ctx, r)

	// The volume display event for this poll is already traced, so the
	// poll event is stamped after it.
	ev := TraceEvent{
		Type:      EventPoll,
		Outcome:   res.Outcome.String(),
		MissCount: res.MissCount,
	}
	if res.Outcome == reconcile.OutcomeApplied {
		ev.Joined = res.Changes.Joined
		ev.Left = res.Changes.Left
		ev.VolumeApplied = res.VolumeApplied
	}
	if res.Outcome == reconcile.OutcomeReset {
		ev.Removed = res.Removed
	}
	h.trace(ev)
}

func (h *Harness) step() {
	for _, t := range h.session.Step() {
		h.trace(TraceEvent{
			Type:        EventTrigger,
			Participant: t.ParticipantID,
			Cue:         t.CueID,
			Gain:        formatGain(h.session.GainFor(t.CueID)),
		})
	}
}

func (h *Harness) trace(ev TraceEvent) {
	ev.AtMS = h.now.Milliseconds()
	ev.Seq = h.seq.Next()
	h.result.Trace = append(h.result.Trace, ev)
}

func (h *Harness) final(ctx context.Context) (Final, error) {
	entries, err := h.store.ReadEntries(ctx, h.session.ID())
	if err != nil {
		return Final{}, fmt.Errorf("failed to read journal: %w", err)
	}
	kinds := make([]store.Kind, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}

	views := h.session.Participants()
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}

	return Final{
		Participants: ids,
		VolumeLevel:  h.session.VolumeLevel(),
		MissCount:    h.session.MissCount(),
		Polling:      h.session.Polling(),
		Sent:         h.sender.Sent(),
		Journal:      kinds,
	}, nil
}

// traceDisplay records volume changes on the trace. Participant changes
// are already visible on the poll events.
type traceDisplay struct {
	h *Harness
}

func (d traceDisplay) VolumeChanged(levelDB float64) {
	d.h.trace(TraceEvent{Type: EventVolume, LevelDB: formatLevel(levelDB)})
}

func (d traceDisplay) ParticipantsChanged([]beat.View) {}

func formatLevel(db float64) string { return fmt.Sprintf("%.2f", db) }

func formatGain(g float64) string { return fmt.Sprintf("%.4f", g) }
