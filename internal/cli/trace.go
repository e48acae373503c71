package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/thebeat/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // empty: latest session
	Kind     string // optional - filter to one entry kind
	List     bool
}

// TraceEntry is one journal entry in the timeline.
type TraceEntry struct {
	Seq            int64    `json:"seq"`
	Kind           string   `json:"kind"`
	RecordedAt     string   `json:"recorded_at"`
	ParticipantID  string   `json:"participant_id,omitempty"`
	CueID          string   `json:"cue_id,omitempty"`
	LevelDB        *float64 `json:"level_db,omitempty"`
	ChangeIndex    *int64   `json:"change_index,omitempty"`
	OriginDeviceID string   `json:"origin_device_id,omitempty"`
	MissCount      int      `json:"miss_count,omitempty"`
}

// TraceSession describes the traced session.
type TraceSession struct {
	ID        string `json:"id"`
	Room      string `json:"room"`
	DeviceID  string `json:"device_id"`
	StartedAt string `json:"started_at"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  TraceSession   `json:"session"`
	Timeline []TraceEntry   `json:"timeline"`
	Stats    map[string]int `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print a session journal",
		Long: `Print what happened during a listening session.

The journal records participants joining and leaving, registry resets
after repeated poll failures, and every volume change seen or made by the
device. Heart rates are never recorded.

Examples:
  thebeat trace --db ./thebeat.db
  thebeat trace --db ./thebeat.db --list
  thebeat trace --db ./thebeat.db --session 0190c6f2-... --kind volume_set
  thebeat trace --db ./thebeat.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show entries of this kind")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions instead of printing one")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	if opts.Kind != "" && !store.Kind(opts.Kind).Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown entry kind %q", opts.Kind))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		_ = formatter.Error(ErrCodeJournal, "failed to open journal", err.Error())
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.List {
		return listSessions(ctx, st, opts, cmd.OutOrStdout())
	}

	var sess store.Session
	if opts.Session == "" {
		sess, err = st.LatestSession(ctx)
	} else {
		sess, err = st.GetSession(ctx, opts.Session)
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "no session to trace", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	entries, err := st.ReadEntries(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := buildTrace(sess, entries, store.Kind(opts.Kind))
	if opts.Format == "json" {
		return outputTraceJSON(cmd.OutOrStdout(), result)
	}
	outputTraceText(cmd.OutOrStdout(), result)
	return nil
}

// buildTrace converts journal entries to the timeline, keeping only kind
// when it is set. Stats always count every entry.
func buildTrace(sess store.Session, entries []store.Entry, kind store.Kind) TraceResult {
	result := TraceResult{
		Session: TraceSession{
			ID:        sess.ID,
			Room:      sess.Room,
			DeviceID:  sess.DeviceID,
			StartedAt: sess.StartedAt.Format(time.RFC3339),
		},
		Timeline: []TraceEntry{},
		Stats:    map[string]int{"total": len(entries)},
	}

	for _, e := range entries {
		result.Stats[string(e.Kind)]++
		if kind != "" && e.Kind != kind {
			continue
		}
		result.Timeline = append(result.Timeline, TraceEntry{
			Seq:            e.Seq,
			Kind:           string(e.Kind),
			RecordedAt:     e.RecordedAt.Format(time.RFC3339Nano),
			ParticipantID:  e.ParticipantID,
			CueID:          e.CueID,
			LevelDB:        e.LevelDB,
			ChangeIndex:    e.ChangeIndex,
			OriginDeviceID: e.OriginDeviceID,
			MissCount:      e.MissCount,
		})
	}
	return result
}

func listSessions(ctx context.Context, st *store.Store, opts *TraceOptions, w io.Writer) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	if opts.Format == "json" {
		out := make([]TraceSession, len(sessions))
		for i, s := range sessions {
			out[i] = TraceSession{ID: s.ID, Room: s.Room, DeviceID: s.DeviceID, StartedAt: s.StartedAt.Format(time.RFC3339)}
		}
		return outputTraceJSON(w, out)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(w, "(no sessions)")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  %s\n", s.StartedAt.Format(time.RFC3339), s.ID, s.Room)
	}
	return nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(w io.Writer, data any) error {
	response := CLIResponse{
		Status: "ok",
		Data:   data,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session.ID)
	fmt.Fprintf(w, "Room: %s\n", result.Session.Room)
	fmt.Fprintf(w, "Device: %s\n", truncateID(result.Session.DeviceID))
	fmt.Fprintf(w, "Started: %s\n", result.Session.StartedAt)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s\n", e.Seq, formatEntry(e))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Entries: %d\n", result.Stats["total"])
	for _, k := range []store.Kind{
		store.KindParticipantJoined,
		store.KindParticipantLeft,
		store.KindRegistryReset,
		store.KindPollFailed,
		store.KindVolumeObserved,
		store.KindVolumeSet,
	} {
		if n := result.Stats[string(k)]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", k, n)
		}
	}
}

// formatEntry renders the fields that matter for each kind.
func formatEntry(e TraceEntry) string {
	switch store.Kind(e.Kind) {
	case store.KindParticipantJoined:
		return fmt.Sprintf("JOIN %s (cue %s)", e.ParticipantID, e.CueID)
	case store.KindParticipantLeft:
		return fmt.Sprintf("LEAVE %s", e.ParticipantID)
	case store.KindPollFailed:
		return fmt.Sprintf("POLL FAILED x%d", e.MissCount)
	case store.KindRegistryReset:
		return fmt.Sprintf("RESET after %d misses", e.MissCount)
	case store.KindVolumeObserved:
		s := fmt.Sprintf("VOLUME %s", formatLevel(e.LevelDB))
		if e.ChangeIndex != nil {
			s += fmt.Sprintf(" #%d", *e.ChangeIndex)
		}
		return s + " from " + truncateID(e.OriginDeviceID)
	case store.KindVolumeSet:
		return fmt.Sprintf("SET VOLUME %s", formatLevel(e.LevelDB))
	default:
		return e.Kind
	}
}

func formatLevel(db *float64) string {
	if db == nil {
		return "?"
	}
	return fmt.Sprintf("%.1f dB", *db)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
