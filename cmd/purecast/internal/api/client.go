// Package api is the HTTP client for the purecast server API, used by the
// CLI subcommands.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/purecast-io/purecast/pkg/recordings"
	"github.com/purecast-io/purecast/pkg/stream"
)

// DefaultTimeout is the default timeout for API requests. Recording
// downloads are exempt; they run on the caller's context alone.
const DefaultTimeout = 30 * time.Second

// Client talks to one purecast server.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// Option is a function that configures the client.
type Option func(*Client)

// WithTimeout sets the request timeout for API calls.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: need http(s)://host[:port]", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Error is an error response from the server.
type Error struct {
	// HTTPStatus is the HTTP status code.
	HTTPStatus int

	// Message is the server's error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("server: %s (http %d)", e.Message, e.HTTPStatus)
}

// IsNotFound reports whether err is a server 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusNotFound
}

// Streams returns all active streams.
func (c *Client) Streams(ctx context.Context) ([]stream.Info, error) {
	var out struct {
		Streams []stream.Info `json:"streams"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/streams", &out); err != nil {
		return nil, err
	}
	return out.Streams, nil
}

// Status reports whether owner is streaming, with session stats when live.
type Status struct {
	Streaming bool         `json:"streaming"`
	Session   *stream.Info `json:"session,omitempty"`
}

// StreamStatus returns the stream status for one owner.
func (c *Client) StreamStatus(ctx context.Context, owner string) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/api/streams/"+url.PathEscape(owner), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop stops owner's stream. It returns false when nothing was streaming.
func (c *Client) Stop(ctx context.Context, owner string) (bool, error) {
	var out struct {
		Stopped bool `json:"stopped"`
	}
	path := "/api/streams/" + url.PathEscape(owner) + "/stop"
	if err := c.do(ctx, http.MethodPost, path, &out); err != nil {
		return false, err
	}
	return out.Stopped, nil
}

// Recordings lists owner's recordings, newest first.
func (c *Client) Recordings(ctx context.Context, owner string) ([]recordings.Recording, error) {
	var out struct {
		Recordings []recordings.Recording `json:"recordings"`
	}
	path := "/api/recordings?owner=" + url.QueryEscape(owner)
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out.Recordings, nil
}

// Recording returns one recording's metadata.
func (c *Client) Recording(ctx context.Context, owner, id string) (*recordings.Recording, error) {
	var out recordings.Recording
	if err := c.do(ctx, http.MethodGet, c.recordingPath(owner, id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRecording deletes a recording.
func (c *Client) DeleteRecording(ctx context.Context, owner, id string) error {
	return c.do(ctx, http.MethodDelete, c.recordingPath(owner, id), nil)
}

// DownloadRecording streams the recording's WAV file to w and returns the
// number of bytes written. No client timeout applies; cancel via ctx.
func (c *Client) DownloadRecording(ctx context.Context, owner, id string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.recordingPath(owner, id)+"/file", nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download: %w", err)
	}
	return n, nil
}

func (c *Client) recordingPath(owner, id string) string {
	return "/api/recordings/" + url.PathEscape(owner) + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, result any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &Error{HTTPStatus: resp.StatusCode, Message: body.Error}
}
