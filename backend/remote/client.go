// Package remote is the HTTP transport between the local store and the remote authority.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gomarks/backend"
)

const (
	SyncPath   = "/api/v1/sync"
	HealthPath = "/healthz"

	// OwnerHeader carries the owner id on every request
	OwnerHeader = "X-Owner-ID"

	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

// Config configures a Client
type Config struct {
	BaseURL           string
	Token             string
	OwnerID           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables client-side limiting
	HTTPClient        *http.Client
}

// Client pushes chunks to and pulls deltas from the remote authority
type Client struct {
	baseURL    string
	token      string
	ownerID    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// TransmissionError reports a chunk that did not reach a valid, successful acknowledgement
type TransmissionError struct {
	Chunk *backend.SyncBatch
	Err   error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("transmission of %d entities failed: %v", e.Chunk.Size()+e.Chunk.Deletions.Len(), e.Err)
}

func (e *TransmissionError) Unwrap() error {
	return e.Err
}

// ErrRejected means the authority answered success=false
var ErrRejected = errors.New("authority rejected the chunk")

// NewClient creates a Client. BaseURL and OwnerID are required.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: remote base url is required", backend.ErrInvalidInput)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: remote base url %q: %v", backend.ErrInvalidInput, base, err)
	}
	if cfg.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", backend.ErrInvalidInput)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		ownerID:    cfg.OwnerID,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

// Push transmits one chunk. Any failure, including an ack that fails validation
// or reports success=false, comes back as a *TransmissionError.
func (c *Client) Push(ctx context.Context, chunk *backend.SyncBatch) (*backend.Ack, error) {
	chunk.Normalize()

	raw, err := c.do(ctx, "Push", http.MethodPost, SyncPath, chunk)
	if err != nil {
		return nil, &TransmissionError{Chunk: chunk, Err: err}
	}

	ack, err := DecodeAck(raw)
	if err != nil {
		return nil, &TransmissionError{Chunk: chunk, Err: err}
	}
	if !ack.Success {
		return nil, &TransmissionError{Chunk: chunk, Err: ErrRejected}
	}
	return ack, nil
}

// Pull fetches entities changed on the authority after since. A nil since fetches everything.
func (c *Client) Pull(ctx context.Context, since *time.Time) (*backend.SyncBatch, error) {
	path := SyncPath
	if since != nil {
		path += "?since=" + strconv.FormatInt(since.UnixMilli(), 10)
	}

	raw, err := c.do(ctx, "Pull", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var batch backend.SyncBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, &backend.BackendError{Operation: "Pull", Message: "failed to decode response", Err: err}
	}
	return &batch, nil
}

// Ping checks that the authority is reachable
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "Ping", http.MethodGet, HealthPath, nil)
	return err
}

// do performs an authenticated request and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &backend.BackendError{Operation: op, Message: "rate limiter", Err: err}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &backend.BackendError{Operation: op, Message: "failed to marshal request body", Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &backend.BackendError{Operation: op, Message: "failed to create request", Err: err}
	}
	req.Header.Set(OwnerHeader, c.ownerID)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &backend.BackendError{Operation: op, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, backend.NewBackendError(op, resp.StatusCode, http.StatusText(resp.StatusCode)).
			WithBody(string(data))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &backend.BackendError{Operation: op, Message: "failed to read response", Err: err}
	}
	return data, nil
}
