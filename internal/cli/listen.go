package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/thebeat/internal/audio"
	"github.com/roach88/thebeat/internal/config"
	"github.com/roach88/thebeat/internal/session"
	"github.com/roach88/thebeat/internal/store"
	"github.com/roach88/thebeat/internal/transport"
	"github.com/roach88/thebeat/internal/volume"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	Room          string
	SnapshotURL   string
	VolumeURL     string
	PollInterval  time.Duration
	StepInterval  time.Duration
	MissThreshold int
	AudioDir      string
	NoAudio       bool
	Journal       string
	DeviceID      string
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen to a room",
		Long: `Join a room and play every participant's heartbeat.

The room is polled for heart-rate snapshots; each participant's cue plays
once per beat at the room's shared volume. Lines typed on stdin control
the session:

  <number>   set the shared volume in dB (for example -6)
  stop       stop polling and playback
  start      resume polling

Stop with Ctrl-C.

Examples:
  thebeat listen --room lobby
  thebeat listen --room lobby --snapshot-url http://10.0.0.5:8000/api/v1/hr
  thebeat listen --config thebeat.yaml --journal thebeat.db
  thebeat listen --room lobby --no-audio --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Room, "room", "r", "", "room to join")
	cmd.Flags().StringVar(&opts.SnapshotURL, "snapshot-url", "", "snapshot endpoint base URL")
	cmd.Flags().StringVar(&opts.VolumeURL, "volume-url", "", "volume endpoint base URL (default: snapshot URL)")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", 0, "snapshot poll interval")
	cmd.Flags().DurationVar(&opts.StepInterval, "step-interval", 0, "beat step interval")
	cmd.Flags().IntVar(&opts.MissThreshold, "miss-threshold", 0, "failed polls before participants are cleared")
	cmd.Flags().StringVar(&opts.AudioDir, "audio-dir", "", "directory holding the cue WAV files")
	cmd.Flags().BoolVar(&opts.NoAudio, "no-audio", false, "do not play sound")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal path (empty: no journal)")
	cmd.Flags().StringVar(&opts.DeviceID, "device-id", "", "device id (default: random)")

	return cmd
}

// applyFlags overrides cfg with the flags the user actually set.
func (o *ListenOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("room") {
		cfg.Room = o.Room
	}
	if flags.Changed("snapshot-url") {
		cfg.Server.SnapshotURL = o.SnapshotURL
	}
	if flags.Changed("volume-url") {
		cfg.Server.VolumeURL = o.VolumeURL
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = o.PollInterval
	}
	if flags.Changed("step-interval") {
		cfg.StepInterval = o.StepInterval
	}
	if flags.Changed("miss-threshold") {
		cfg.MissThreshold = o.MissThreshold
	}
	if flags.Changed("audio-dir") {
		cfg.Audio.Dir = o.AudioDir
	}
	if o.NoAudio {
		cfg.Audio.Enabled = false
	}
	if flags.Changed("journal") {
		cfg.Journal.Path = o.Journal
	}
}

func runListen(opts *ListenOptions, cmd *cobra.Command) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load config", err)
	}
	opts.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitFailure, "invalid config", err)
	}
	if err := cfg.RequireRoom(); err != nil {
		return WrapExitError(ExitCommandError, "cannot listen", err)
	}

	logger := opts.Logger(cmd.ErrOrStderr()).With().Str("room", cfg.Room).Logger()

	client := transport.NewClient(cfg.Server.SnapshotURL, cfg.Server.VolumeURL)
	if cfg.Server.Timeout > 0 {
		client.SetTimeout(cfg.Server.Timeout)
	}

	sessOpts := []session.Option{
		session.WithLogger(logger),
		session.WithIntervals(cfg.PollInterval, cfg.StepInterval),
		session.WithMissThreshold(cfg.MissThreshold),
		session.WithInitialLevel(cfg.Volume.InitialDB),
		session.WithOffsets(cfg.Audio.Offsets),
		session.WithSender(transport.RoomSender{Client: client, Room: cfg.Room}),
		session.WithCues(cfg.Audio.DefaultCue, cfg.Audio.Cues),
		session.WithDisplay(newStatusDisplay(cmd.OutOrStdout(), opts.Format)),
	}
	if opts.DeviceID != "" {
		sessOpts = append(sessOpts, session.WithDeviceID(opts.DeviceID))
	}
	if cfg.Audio.Enabled {
		sessOpts = append(sessOpts, session.WithOutput(audio.NewSpeakerOutput(cfg.Audio.Dir)))
	}

	var journal *store.Store
	if cfg.Journal.Path != "" {
		journal, err = store.Open(cfg.Journal.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer journal.Close()
		sessOpts = append(sessOpts, session.WithJournal(journal))
	}

	sess := session.New(cfg.Room, client, sessOpts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if journal != nil {
		if err := journal.BeginSession(ctx, store.Session{
			ID:        sess.ID(),
			Room:      sess.Room(),
			DeviceID:  sess.DeviceID(),
			StartedAt: time.Now(),
		}); err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal session", err)
		}
	}

	if opts.Config != "" {
		go func() {
			apply := func(o volume.Offsets) {
				if err := sess.SetOffsets(o); err != nil {
					logger.Debug().Err(err).Msg("offset reload dropped")
				}
			}
			if err := config.WatchOffsets(ctx, opts.Config, apply, logger); err != nil {
				logger.Warn().Err(err).Msg("config watch disabled")
			}
		}()
	}

	go readCommands(cmd.InOrStdin(), sess, logger)

	logger.Info().
		Str("session_id", sess.ID()).
		Str("device_id", sess.DeviceID()).
		Str("snapshot_url", cfg.Server.SnapshotURL).
		Bool("audio", cfg.Audio.Enabled).
		Msg("listening")

	if err := sess.Start(); err != nil {
		return err
	}
	err = sess.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// readCommands turns stdin lines into session events until r is
// exhausted or the session closes.
func readCommands(r io.Reader, sess *session.Session, logger zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch strings.ToLower(line) {
		case "stop":
			err = sess.Stop()
		case "start":
			err = sess.Start()
		default:
			level, perr := strconv.ParseFloat(line, 64)
			if perr != nil {
				logger.Warn().Str("input", line).Msg("expected a volume in dB, stop or start")
				continue
			}
			err = sess.SetVolume(level)
		}

		if errors.Is(err, session.ErrClosed) {
			return
		}
		if err != nil {
			logger.Warn().Err(err).Str("input", line).Msg("command rejected")
		}
	}
}

func writeJSONLine(w io.Writer, v any) {
	_ = json.NewEncoder(w).Encode(v)
}
