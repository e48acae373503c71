package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thebeat/internal/store"
)

var traceStart = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// seedJournal writes two sessions: an older empty one and a newer one with
// a join, a volume change and a reset.
func seedJournal(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "thebeat.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.BeginSession(ctx, store.Session{
		ID: "session-old", Room: "lobby", DeviceID: "device-a", StartedAt: traceStart,
	}))
	require.NoError(t, st.BeginSession(ctx, store.Session{
		ID: "session-new", Room: "studio", DeviceID: "device-b", StartedAt: traceStart.Add(time.Hour),
	}))

	entries := []store.Entry{
		{Kind: store.KindParticipantJoined, ParticipantID: "p1", CueID: "beep.wav"},
		{Kind: store.KindVolumeObserved, LevelDB: ptr(-6.0), ChangeIndex: ptr(int64(3)), OriginDeviceID: "device-c"},
		{Kind: store.KindVolumeSet, LevelDB: ptr(-3.0)},
		{Kind: store.KindPollFailed, MissCount: 10},
		{Kind: store.KindRegistryReset, MissCount: 10},
	}
	for i, e := range entries {
		e.SessionID = "session-new"
		e.Seq = int64(i + 1)
		e.RecordedAt = traceStart.Add(time.Hour + time.Duration(i)*time.Second)
		require.NoError(t, st.Append(ctx, e))
	}
	return dbPath
}

func executeTrace(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := executeTrace(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	_, err := executeTrace(t, "text", "--db", "/nonexistent/path/thebeat.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceEmptyJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeTrace(t, "text", "--db", dbPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.Contains(t, out, "Error [E105]")
}

func TestTraceLatestSession(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := executeTrace(t, "text", "--db", dbPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Trace for Session: session-new")
	assert.Contains(t, out, "Room: studio")
	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, "[1] JOIN p1 (cue beep.wav)")
	assert.Contains(t, out, "[2] VOLUME -6.0 dB #3 from device-c")
	assert.Contains(t, out, "[3] SET VOLUME -3.0 dB")
	assert.Contains(t, out, "[4] POLL FAILED x10")
	assert.Contains(t, out, "[5] RESET after 10 misses")
	assert.Contains(t, out, "=== Stats ===")
	assert.Contains(t, out, "Total Entries: 5")
	assert.Contains(t, out, "participant_joined: 1")
}

func TestTraceNamedSession(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := executeTrace(t, "text", "--db", dbPath, "--session", "session-old")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Session: session-old")
	assert.Contains(t, out, "(no entries)")
	assert.Contains(t, out, "Total Entries: 0")
}

func TestTraceUnknownSession(t *testing.T) {
	dbPath := seedJournal(t)

	_, err := executeTrace(t, "text", "--db", dbPath, "--session", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceJSON(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := executeTrace(t, "json", "--db", dbPath)
	require.NoError(t, err)

	var response struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "session-new", response.Data.Session.ID)
	assert.Equal(t, "device-b", response.Data.Session.DeviceID)
	require.Len(t, response.Data.Timeline, 5)

	vol := response.Data.Timeline[1]
	assert.Equal(t, "volume_observed", vol.Kind)
	require.NotNil(t, vol.LevelDB)
	assert.Equal(t, -6.0, *vol.LevelDB)
	require.NotNil(t, vol.ChangeIndex)
	assert.Equal(t, int64(3), *vol.ChangeIndex)
	assert.Equal(t, 5, response.Data.Stats["total"])
}

func TestTraceKindFilter(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := executeTrace(t, "text", "--db", dbPath, "--kind", "volume_set")
	require.NoError(t, err)
	assert.Contains(t, out, "SET VOLUME -3.0 dB")
	assert.NotContains(t, out, "JOIN p1")
	// Stats still count the whole session.
	assert.Contains(t, out, "Total Entries: 5")
}

func TestTraceUnknownKind(t *testing.T) {
	dbPath := seedJournal(t)

	_, err := executeTrace(t, "text", "--db", dbPath, "--kind", "heart_rate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entry kind")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceListSessions(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := executeTrace(t, "text", "--db", dbPath, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "session-old")
	assert.Contains(t, out, "session-new")
	assert.Less(t, bytes.Index([]byte(out), []byte("session-old")), bytes.Index([]byte(out), []byte("session-new")))
}

func TestTraceListSessionsJSON(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := executeTrace(t, "json", "--db", dbPath, "--list")
	require.NoError(t, err)

	var response struct {
		Data []TraceSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	require.Len(t, response.Data, 2)
	assert.Equal(t, "session-old", response.Data[0].ID)
	assert.Equal(t, "lobby", response.Data[0].Room)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "device-c", truncateID("device-c"))
	assert.Equal(t, "00000000...0000d001", truncateID("00000000-0000-4000-8000-00000000d001"))
}
