// Package transport talks to the room server: it fetches heart-rate
// snapshots and posts volume-set commands.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/thebeat/internal/volume"
)

// DefaultSnapshotURL is the snapshot endpoint base of a locally running
// server.
const DefaultSnapshotURL = "http://localhost:8000/api/v1/hr"

// Client is an HTTP client for one room server.
type Client struct {
	snapshotURL string
	volumeURL   string
	client      *http.Client
	headers     map[string]string
}

// NewClient creates a client. Snapshots are fetched from
// GET <snapshotURL>/<room> and volume commands posted to
// POST <volumeURL>/<room>; an empty volumeURL reuses snapshotURL.
//
// No request timeout is set unless SetTimeout is called.
func NewClient(snapshotURL, volumeURL string) *Client {
	if volumeURL == "" {
		volumeURL = snapshotURL
	}
	return &Client{
		snapshotURL: strings.TrimRight(snapshotURL, "/"),
		volumeURL:   strings.TrimRight(volumeURL, "/"),
		client:      &http.Client{},
		headers:     map[string]string{"Accept": "application/json"},
	}
}

// SetHeader adds a header to every request.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetTimeout bounds every request. Zero means no timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// FetchSnapshot fetches and validates the current snapshot of room.
//
// Transport errors and non-2xx statuses return a TRANSPORT_FAILURE error;
// undecodable bodies or missing fields return MALFORMED_SNAPSHOT.
func (c *Client) FetchSnapshot(ctx context.Context, room string) (*Snapshot, error) {
	body, err := c.makeRequest(ctx, http.MethodGet, roomURL(c.snapshotURL, room), nil)
	if err != nil {
		return nil, err
	}

	return DecodeSnapshot(body)
}

// SetVolume posts a volume-set command for room. The response body is
// ignored.
func (c *Client) SetVolume(ctx context.Context, room string, cmd volume.Command) error {
	payload, err := json.Marshal(wireVolumeSet{
		Volume:            cmd.LevelDB,
		VolumeChangerUUID: cmd.OriginDeviceID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode volume command: %w", err)
	}

	_, err = c.makeRequest(ctx, http.MethodPost, roomURL(c.volumeURL, room), bytes.NewReader(payload))
	return err
}

// RoomSender binds a Client to one room so it can serve as a
// volume.Sender.
type RoomSender struct {
	Client *Client
	Room   string
}

// SendVolume implements volume.Sender.
func (s RoomSender) SendVolume(ctx context.Context, cmd volume.Command) error {
	return s.Client.SetVolume(ctx, s.Room, cmd)
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, transportFailure("failed to create request", 0, err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportFailure("failed to make request", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, transportFailure(
			fmt.Sprintf("server returned %s %s: %s", method, endpoint, strings.TrimSpace(string(responseBody))),
			resp.StatusCode,
			nil,
		)
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportFailure("failed to read response body", resp.StatusCode, err)
	}
	return responseBody, nil
}

func roomURL(base, room string) string {
	return base + "/" + url.PathEscape(room)
}
