// Package client talks to a lexisync server over HTTP.
//
// It is used by the CLI's pull, push, import and loadtest commands, and by
// anything else that wants to drive a server without hand-rolling requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/lexiflow/lexisync/internal/api"
	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

// ErrIncompatible is returned by CheckCompatibility when the server's major
// version differs from the client's.
var ErrIncompatible = errors.New("incompatible server version")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. A client passed to
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// New creates a client for the server at baseURL, authenticating with token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Timestamp returns the server's current checkpoint.
func (c *Client) Timestamp(ctx context.Context) (time.Time, error) {
	var resp api.TimestampResponse
	if err := c.do(ctx, http.MethodGet, "/sync/timestamp", nil, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.Timestamp, nil
}

// Tables lists the tables the server exposes.
func (c *Client) Tables(ctx context.Context) ([]api.TableInfo, error) {
	var tables []api.TableInfo
	if err := c.do(ctx, http.MethodGet, "/sync/tables", nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// Pull fetches changes to table. A nil since requests a full snapshot.
func (c *Client) Pull(ctx context.Context, table string, since *time.Time) ([]lexisync.ChangeEnvelope, error) {
	path := "/sync/" + url.PathEscape(table)
	if since != nil {
		path += "?lastSyncTime=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	var envs []lexisync.ChangeEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

// Push sends a batch of envelopes to table.
func (c *Client) Push(ctx context.Context, table string, batch []lexisync.ChangeEnvelope) (*lexisync.ApplyResult, error) {
	if batch == nil {
		batch = []lexisync.ChangeEnvelope{}
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	var result lexisync.ApplyResult
	if err := c.do(ctx, http.MethodPost, "/sync/"+url.PathEscape(table), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckCompatibility compares the server's major version with clientVersion.
// Both must be semantic versions with a leading "v".
func (c *Client) CheckCompatibility(ctx context.Context, clientVersion string) error {
	health, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if !semver.IsValid(clientVersion) {
		return fmt.Errorf("invalid client version %q", clientVersion)
	}
	if !semver.IsValid(health.Version) {
		return fmt.Errorf("server reported invalid version %q", health.Version)
	}
	if semver.Major(health.Version) != semver.Major(clientVersion) {
		return fmt.Errorf("%w: server %s, client %s", ErrIncompatible, health.Version, clientVersion)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
