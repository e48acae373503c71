package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thebeat/internal/beat"
	"github.com/roach88/thebeat/internal/volume"
)

func serveBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSnapshot_Success(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{
			"data": {
				"p1": {"hr": 60, "audio_file": "a", "time_utc": "2024-01-01T00:00:00Z"},
				"p2": {"hr": 72.5, "audio_file": ""}
			},
			"volume": -6,
			"volume_change_index": 5,
			"volume_changer_uuid": "X"
		}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v1/hr/", "")
	snap, err := c.FetchSnapshot(context.Background(), "lobby")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/hr/lobby", gotPath)
	assert.Equal(t, map[string]beat.Reading{
		"p1": {BPM: 60, CueID: "a"},
		"p2": {BPM: 72.5, CueID: ""},
	}, snap.Participants)
	assert.Equal(t, volume.State{LevelDB: -6, ChangeIndex: 5, OriginDeviceID: "X"}, snap.Volume)
}

func TestFetchSnapshot_EmptyRoom(t *testing.T) {
	srv := serveBody(t, http.StatusOK, `{"data":{},"volume":-10,"volume_change_index":0,"volume_changer_uuid":"u"}`)

	snap, err := NewClient(srv.URL, "").FetchSnapshot(context.Background(), "r")
	require.NoError(t, err)
	assert.Empty(t, snap.Participants)
}

func TestFetchSnapshot_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{"server_error", http.StatusInternalServerError, `{"message":"boom"}`, false},
		{"not_found", http.StatusNotFound, ``, false},
		{"not_json", http.StatusOK, `<html>`, true},
		{"null_body", http.StatusOK, `null`, true},
		{"missing_data", http.StatusOK, `{"volume":-10,"volume_change_index":0,"volume_changer_uuid":"u"}`, true},
		{"missing_volume", http.StatusOK, `{"data":{},"volume_change_index":0,"volume_changer_uuid":"u"}`, true},
		{"missing_index", http.StatusOK, `{"data":{},"volume":-10,"volume_changer_uuid":"u"}`, true},
		{"missing_changer", http.StatusOK, `{"data":{},"volume":-10,"volume_change_index":0}`, true},
		{"negative_index", http.StatusOK, `{"data":{},"volume":-10,"volume_change_index":-1,"volume_changer_uuid":"u"}`, true},
		{"missing_hr", http.StatusOK, `{"data":{"p":{"audio_file":"a"}},"volume":-10,"volume_change_index":0,"volume_changer_uuid":"u"}`, true},
		{"negative_hr", http.StatusOK, `{"data":{"p":{"hr":-1}},"volume":-10,"volume_change_index":0,"volume_changer_uuid":"u"}`, true},
		{"hr_wrong_type", http.StatusOK, `{"data":{"p":{"hr":"fast"}},"volume":-10,"volume_change_index":0,"volume_changer_uuid":"u"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveBody(t, tt.status, tt.body)
			snap, err := NewClient(srv.URL, "").FetchSnapshot(context.Background(), "r")
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.Equal(t, tt.malformed, IsMalformedSnapshot(err), err.Error())
			assert.Equal(t, !tt.malformed, IsTransportFailure(err), err.Error())

			var te *Error
			require.ErrorAs(t, err, &te)
			if !tt.malformed {
				assert.Equal(t, tt.status, te.Status)
			}
		})
	}
}

func TestFetchSnapshot_ConnectionRefused(t *testing.T) {
	srv := serveBody(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "").FetchSnapshot(context.Background(), "r")
	require.Error(t, err)
	assert.True(t, IsTransportFailure(err))
}

func TestFetchSnapshot_ContextCancelled(t *testing.T) {
	srv := serveBody(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, "").FetchSnapshot(ctx, "r")
	require.Error(t, err)
	assert.True(t, IsTransportFailure(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetVolume_PostsCommand(t *testing.T) {
	var got map[string]any
	var gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"volume":-3,"volume_change_index":7,"volume_changer_uuid":"dev"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/hr", srv.URL+"/volume")
	err := RoomSender{Client: c, Room: "my room"}.SendVolume(context.Background(), volume.Command{LevelDB: -3, OriginDeviceID: "dev"})
	require.NoError(t, err)

	assert.Equal(t, "/volume/my room", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, map[string]any{"volume": -3.0, "volume_changer_uuid": "dev"}, got)
}

func TestSetVolume_ServerErrorIsTransportFailure(t *testing.T) {
	srv := serveBody(t, http.StatusBadRequest, `bad`)
	err := NewClient(srv.URL, "").SetVolume(context.Background(), "r", volume.Command{LevelDB: 0, OriginDeviceID: "d"})
	require.Error(t, err)
	assert.True(t, IsTransportFailure(err))
	assert.Contains(t, err.Error(), "status=400")
}

func TestError_Format(t *testing.T) {
	err := &Error{Code: ErrCodeMalformedSnapshot, Message: "invalid snapshot", Err: io.ErrUnexpectedEOF}
	assert.Equal(t, "MALFORMED_SNAPSHOT: invalid snapshot: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
