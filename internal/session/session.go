package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/roach88/thebeat/internal/audio"
	"github.com/roach88/thebeat/internal/beat"
	"github.com/roach88/thebeat/internal/reconcile"
	"github.com/roach88/thebeat/internal/store"
	"github.com/roach88/thebeat/internal/volume"
)

const (
	// DefaultPollInterval is the snapshot fetch cadence.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultStepInterval is the phase-advance cadence.
	DefaultStepInterval = 50 * time.Millisecond
)

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock driving the tickers. Tests pass a
// clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the logger. Component loggers are derived from it.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithDeviceID overrides the generated local device id.
func WithDeviceID(id string) Option {
	return func(s *Session) { s.deviceID = id }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithIntervals sets the poll and step cadences. Non-positive values keep
// the defaults.
func WithIntervals(poll, step time.Duration) Option {
	return func(s *Session) {
		if poll > 0 {
			s.pollInterval = poll
		}
		if step > 0 {
			s.stepInterval = step
		}
	}
}

// WithMissThreshold sets the consecutive-miss count that resets the
// registry.
func WithMissThreshold(n int) Option {
	return func(s *Session) { s.threshold = n }
}

// WithInitialLevel sets the volume level used until the first snapshot.
func WithInitialLevel(db float64) Option {
	return func(s *Session) { s.initialLevel = db }
}

// WithOffsets sets the per-cue dB offsets.
func WithOffsets(o volume.Offsets) Option {
	return func(s *Session) { s.offsets = o.Clone() }
}

// WithSender sets the volume-set transport. Without one, local edits are
// applied but never sent.
func WithSender(sender volume.Sender) Option {
	return func(s *Session) { s.sender = sender }
}

// WithVolumeDispatch controls how volume-set commands are sent. Defaults
// to one goroutine per command.
func WithVolumeDispatch(fn func(func())) Option {
	return func(s *Session) { s.dispatch = fn }
}

// WithOutput sets the audio output. Without one, playback is disabled.
func WithOutput(out audio.Output) Option {
	return func(s *Session) { s.output = out }
}

// WithCues sets the default cue and the cue ids preloaded by Prepare.
func WithCues(defaultCue string, ids []string) Option {
	return func(s *Session) {
		s.defaultCue = defaultCue
		s.cues = append([]string(nil), ids...)
	}
}

// WithJournal sets the journal.
func WithJournal(j Journal) Option {
	return func(s *Session) { s.journal = j }
}

// WithDisplay sets the display hook.
func WithDisplay(d Display) Option {
	return func(s *Session) { s.display = d }
}

// Session is one device listening to one room.
//
// Thread-safety model:
//   - Start, Stop, SetVolume, SetOffsets, Close: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Drain, Poll, Issue, ApplyPoll, Step and the accessors: only when Run is not
//     active, from a single goroutine
type Session struct {
	room     string
	id       string
	deviceID string
	fetcher  Fetcher
	sender   volume.Sender
	dispatch func(func())

	clock  clockwork.Clock
	seq    *Clock
	logger zerolog.Logger

	pollInterval time.Duration
	stepInterval time.Duration
	threshold    int
	initialLevel float64
	offsets      volume.Offsets

	output     audio.Output
	defaultCue string
	cues       []string

	journal Journal
	display Display

	registry   *beat.Registry
	volume     *volume.Sync
	reconciler *reconcile.Reconciler
	bank       *audio.Bank
	queue      *eventQueue

	prepared bool
}

// New creates an idle session for room. Call Start to begin polling.
func New(room string, fetcher Fetcher, opts ...Option) *Session {
	s := &Session{
		room:         room,
		fetcher:      fetcher,
		clock:        clockwork.NewRealClock(),
		seq:          NewClock(),
		logger:       zerolog.Nop(),
		pollInterval: DefaultPollInterval,
		stepInterval: DefaultStepInterval,
		threshold:    reconcile.DefaultMissThreshold,
		initialLevel: volume.DefaultLevelDB,
		offsets:      volume.DefaultOffsets(),
		defaultCue:   beat.DefaultCue,
		journal:      nopJournal{},
		display:      nopDisplay{},
		queue:        newEventQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = NewSessionID()
	}
	if s.deviceID == "" {
		s.deviceID = NewDeviceID()
	}
	s.logger = s.logger.With().Str("room", room).Logger()

	volOpts := []volume.Option{
		volume.WithInitialLevel(s.initialLevel),
		volume.WithOffsets(s.offsets),
		volume.WithLogger(s.logger),
		volume.WithOnChange(func(level float64) { s.display.VolumeChanged(level) }),
	}
	if s.dispatch != nil {
		volOpts = append(volOpts, volume.WithDispatch(s.dispatch))
	}

	s.registry = beat.NewRegistry(s.defaultCue)
	s.volume = volume.NewSync(s.deviceID, s.sender, volOpts...)
	s.reconciler = reconcile.New(s.registry, s.volume,
		reconcile.WithMissThreshold(s.threshold),
		reconcile.WithLogger(s.logger),
	)
	s.bank = audio.NewBank(s.output, s.defaultCue, s.logger)
	return s
}

// Prepare preloads the configured cues. It runs once; later calls return
// nil. A returned error means playback is disabled and the session keeps
// running without sound.
func (s *Session) Prepare(ctx context.Context) error {
	if s.prepared {
		return nil
	}
	s.prepared = true

	cues := s.cues
	if len(cues) == 0 {
		cues = []string{s.defaultCue}
	}
	if err := s.bank.Load(ctx, cues); err != nil {
		return fmt.Errorf("preload cues: %w", err)
	}
	return nil
}

// Start asks the session to begin polling.
func (s *Session) Start() error {
	return s.enqueue(Event{Type: EventStart})
}

// Stop asks the session to stop polling and stepping. Fetches already in
// flight are ignored when they complete.
func (s *Session) Stop() error {
	return s.enqueue(Event{Type: EventStop})
}

// SetVolume asks the session to apply a local volume edit.
func (s *Session) SetVolume(levelDB float64) error {
	if math.IsNaN(levelDB) || math.IsInf(levelDB, 0) {
		return fmt.Errorf("set volume %v: %w", levelDB, volume.ErrInvalidLevel)
	}
	return s.enqueue(Event{Type: EventSetVolume, LevelDB: levelDB})
}

// SetOffsets asks the session to replace its per-cue offsets.
func (s *Session) SetOffsets(o volume.Offsets) error {
	return s.enqueue(Event{Type: EventSetOffsets, Offsets: o.Clone()})
}

// Close stops accepting events. An active Run returns nil once the queue
// has drained.
func (s *Session) Close() {
	s.queue.Close()
}

func (s *Session) enqueue(e Event) error {
	if !s.queue.Enqueue(e) {
		return fmt.Errorf("%s: %w", e.Type, ErrClosed)
	}
	return nil
}

// Run starts the single-writer loop and blocks until ctx is cancelled or
// Close is called.
//
// Failures inside the loop (fetch errors, audio errors, journal errors)
// are logged and absorbed; none of them stop the cadence.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Prepare(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("continuing without sound")
	}

	poll := s.clock.NewTicker(s.pollInterval)
	defer poll.Stop()
	step := s.clock.NewTicker(s.stepInterval)
	defer step.Stop()

	s.logger.Info().
		Str("session_id", s.id).
		Str("device_id", s.deviceID).
		Dur("poll_interval", s.pollInterval).
		Dur("step_interval", s.stepInterval).
		Msg("session starting")

	for {
		if ev, ok := s.queue.TryDequeue(); ok {
			if started := s.handle(ctx, ev); started {
				s.pollAsync(ctx)
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("session stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()

		case <-s.queue.Wait():
			if s.queue.Closed() && s.queue.Len() == 0 {
				s.logger.Info().Msg("session stopping: closed")
				return nil
			}

		case <-poll.Chan():
			s.pollAsync(ctx)

		case <-step.Chan():
			s.Step()
		}
	}
}

// Drain handles every queued event synchronously and returns how many
// were handled. Poll results must be supplied through ApplyPoll instead.
func (s *Session) Drain(ctx context.Context) int {
	n := 0
	for {
		ev, ok := s.queue.TryDequeue()
		if !ok {
			return n
		}
		s.handle(ctx, ev)
		n++
	}
}

// handle applies one event. Returns true when the event moved the
// session from idle to polling.
func (s *Session) handle(ctx context.Context, ev Event) bool {
	switch ev.Type {
	case EventPollResult:
		if ev.Poll != nil {
			s.ApplyPoll(ctx, *ev.Poll)
		}

	case EventStart:
		if s.reconciler.Start() {
			s.logger.Info().Msg("polling started")
			return true
		}

	case EventStop:
		if s.reconciler.Stop() {
			s.logger.Info().Msg("polling stopped")
		}

	case EventSetVolume:
		if err := s.volume.SetLocal(ctx, ev.LevelDB); err != nil {
			s.logger.Warn().Err(err).Msg("volume edit rejected")
			return false
		}
		level := ev.LevelDB
		s.record(ctx, store.Entry{
			Kind:           store.KindVolumeSet,
			LevelDB:        &level,
			OriginDeviceID: s.deviceID,
		})

	case EventSetOffsets:
		s.volume.SetOffsets(ev.Offsets)
		s.logger.Info().Int("cues", len(ev.Offsets)).Msg("cue offsets reloaded")

	default:
		s.logger.Error().Int("type", int(ev.Type)).Msg("unknown event type")
	}
	return false
}

// pollAsync launches a background fetch unless the session is idle. Each
// fetch is bounded by the poll interval, so a hung request turns into a
// miss instead of holding up later polls. Results that arrive after a
// newer one are dropped by the reconciler.
func (s *Session) pollAsync(ctx context.Context) {
	if !s.reconciler.Polling() {
		return
	}

	tag := s.Issue()
	fctx, cancel := clockwork.WithTimeout(ctx, s.clock, s.pollInterval)
	fetcher, room, queue := s.fetcher, s.room, s.queue
	go func() {
		defer cancel()
		snap, err := fetcher.FetchSnapshot(fctx, room)
		tag.Snapshot, tag.Err = snap, err
		queue.Enqueue(Event{Type: EventPollResult, Poll: &tag})
	}()
}

// Issue tags a fetch about to be made with the current generation and the
// next request number. Fill in Snapshot and Err and pass the result to
// ApplyPoll.
func (s *Session) Issue() PollResult {
	return PollResult{Generation: s.reconciler.Generation(), Request: s.reconciler.Issue()}
}

// Poll fetches a snapshot synchronously and applies it.
func (s *Session) Poll(ctx context.Context) reconcile.Result {
	gen := s.reconciler.Generation()
	snap, err := s.fetcher.FetchSnapshot(ctx, s.room)
	return s.ApplyPoll(ctx, PollResult{Generation: gen, Snapshot: snap, Err: err})
}

// ApplyPoll folds a poll result into the session, journals the effect and
// notifies the display.
func (s *Session) ApplyPoll(ctx context.Context, r PollResult) reconcile.Result {
	res := s.reconciler.ApplyRequest(r.Generation, r.Request, r.Snapshot, r.Err)

	switch res.Outcome {
	case reconcile.OutcomeApplied:
		for _, id := range res.Changes.Joined {
			view, _ := s.registry.Get(id)
			s.record(ctx, store.Entry{Kind: store.KindParticipantJoined, ParticipantID: id, CueID: view.CueID})
		}
		for _, id := range res.Changes.Left {
			s.record(ctx, store.Entry{Kind: store.KindParticipantLeft, ParticipantID: id})
		}
		if res.VolumeApplied {
			level, index := r.Snapshot.Volume.LevelDB, r.Snapshot.Volume.ChangeIndex
			s.record(ctx, store.Entry{
				Kind:           store.KindVolumeObserved,
				LevelDB:        &level,
				ChangeIndex:    &index,
				OriginDeviceID: r.Snapshot.Volume.OriginDeviceID,
			})
		}
		if !res.Changes.Empty() {
			s.display.ParticipantsChanged(s.registry.Views())
		}

	case reconcile.OutcomeReset:
		s.record(ctx, store.Entry{Kind: store.KindPollFailed, MissCount: res.MissCount})
		s.record(ctx, store.Entry{Kind: store.KindRegistryReset, MissCount: res.MissCount})
		s.display.ParticipantsChanged(s.registry.Views())
	}

	return res
}

// Step advances every participant clock by one step interval and plays a
// cue for each trigger. Does nothing while idle.
func (s *Session) Step() []beat.Trigger {
	if !s.reconciler.Polling() {
		return nil
	}

	triggers := s.registry.Tick(s.stepInterval)
	for _, t := range triggers {
		s.bank.Play(t.CueID, s.volume.GainFor(t.CueID))
	}
	return triggers
}

func (s *Session) record(ctx context.Context, e store.Entry) {
	e.SessionID = s.id
	e.Seq = s.seq.Next()
	e.RecordedAt = s.clock.Now()
	if err := s.journal.Append(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(e.Kind)).Int64("seq", e.Seq).Msg("journal append failed")
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Room returns the room name.
func (s *Session) Room() string { return s.room }

// DeviceID returns the local device id.
func (s *Session) DeviceID() string { return s.deviceID }

// Polling reports whether the session is polling.
func (s *Session) Polling() bool { return s.reconciler.Polling() }

// Participants returns the current participants ordered by id.
func (s *Session) Participants() []beat.View { return s.registry.Views() }

// VolumeLevel returns the local volume level in dB.
func (s *Session) VolumeLevel() float64 { return s.volume.Level() }

// GainFor returns the linear gain currently applied to cueID.
func (s *Session) GainFor(cueID string) float64 { return s.volume.GainFor(cueID) }

// MissCount returns the consecutive failed poll count.
func (s *Session) MissCount() int { return s.reconciler.MissCount() }

// Generation returns the reconciler generation that fetches are tagged
// with.
func (s *Session) Generation() uint64 { return s.reconciler.Generation() }

// AudioEnabled reports whether cues are being played.
func (s *Session) AudioEnabled() bool { return s.bank.Enabled() }

// Intervals returns the poll and step cadences.
func (s *Session) Intervals() (poll, step time.Duration) {
	return s.pollInterval, s.stepInterval
}
