// Package client provides the HTTP and WebSocket clients for the DocChat
// backend. It handles connection management, retry logic, and the streaming
// chat wire protocol.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/otherjamesbrown/docchat-cli/config"
	"github.com/otherjamesbrown/docchat-cli/pkg/chat"
	"github.com/otherjamesbrown/docchat-cli/pkg/documents"
	dcerrors "github.com/otherjamesbrown/docchat-cli/pkg/errors"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
)

// Default connection settings.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultRequestTimeout    = 2 * time.Minute
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// ClientOptions configures backend client behavior.
type ClientOptions struct {
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration

	// RequestTimeout is the per-request deadline for REST calls.
	RequestTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int

	// InitialBackoff is the initial backoff duration for retries.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for retries.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Logger receives transport-level logs. Defaults to a nop logger.
	Logger logging.Logger
}

// DefaultOptions returns ClientOptions with default values.
func DefaultOptions() *ClientOptions {
	return &ClientOptions{
		ConnectTimeout:    DefaultConnectTimeout,
		RequestTimeout:    DefaultRequestTimeout,
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// DocumentClient talks to the DocChat document service over HTTP.
type DocumentClient struct {
	baseURL string
	http    *http.Client
	options *ClientOptions
	log     logging.Logger
}

// NewDocumentClient creates a client for the document service.
func NewDocumentClient(baseURL string, opts *ClientOptions) *DocumentClient {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &DocumentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.RequestTimeout},
		options: opts,
		log:     log,
	}
}

// DocumentList is the document service's paginated listing response.
type DocumentList struct {
	Documents []documents.Document `json:"documents"`
	Total     int                  `json:"total"`
}

// ListDocuments returns a page of uploaded documents.
func (c *DocumentClient) ListDocuments(ctx context.Context, skip, limit int) (*DocumentList, error) {
	path := fmt.Sprintf("/documents/?skip=%d&limit=%d", skip, limit)
	var out DocumentList
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return &out, nil
}

// GetStatus returns the current record for one document, including its
// processed flag.
func (c *DocumentClient) GetStatus(ctx context.Context, id string) (documents.Document, error) {
	var out documents.Document
	if err := c.getJSON(ctx, "/documents/"+url.PathEscape(id), &out); err != nil {
		return documents.Document{}, fmt.Errorf("getting document %s: %w", id, err)
	}
	return out, nil
}

// DeleteDocument removes a document and its derived data from the backend.
func (c *DocumentClient) DeleteDocument(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// GetTimestamps returns the transcription segments for a media document.
func (c *DocumentClient) GetTimestamps(ctx context.Context, id string) ([]chat.TimestampSegment, error) {
	var out struct {
		DocumentID string                  `json:"document_id"`
		Timestamps []chat.TimestampSegment `json:"timestamps"`
	}
	if err := c.getJSON(ctx, "/documents/"+url.PathEscape(id)+"/timestamps", &out); err != nil {
		return nil, fmt.Errorf("getting timestamps for %s: %w", id, err)
	}
	return out.Timestamps, nil
}

// FileURL returns the byte-serving URL for a document's media file,
// suitable for handing to a playback surface.
func (c *DocumentClient) FileURL(id string) string {
	return c.baseURL + "/documents/" + url.PathEscape(id) + "/file"
}

// BaseURL returns the configured backend base URL.
func (c *DocumentClient) BaseURL() string {
	return c.baseURL
}

// WithRetry executes the given function with automatic retry on failure.
// Uses exponential backoff between retry attempts.
func (c *DocumentClient) WithRetry(ctx context.Context, fn func() error) error {
	backoff := c.options.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			if attempt == c.options.MaxRetries || !dcerrors.IsRetryable(err) {
				break
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("operation cancelled: %w", ctx.Err())
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * c.options.BackoffMultiplier)
			if backoff > c.options.MaxBackoff {
				backoff = c.options.MaxBackoff
			}
			continue
		}
		return nil
	}

	return lastErr
}

// getJSON performs a GET and decodes the JSON response body into out.
func (c *DocumentClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError maps backend HTTP status codes onto domain errors.
// Raw response payloads never propagate past this point; only the
// backend's human-readable detail is kept.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail := readDetail(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return dcerrors.ErrDocumentNotFound
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(detail), "not yet processed") {
			return dcerrors.ErrDocumentNotProcessed
		}
	}
	if detail == "" {
		detail = resp.Status
	}
	return fmt.Errorf("backend error: %s", detail)
}

// readDetail extracts the "detail" field the backend uses for error bodies.
func readDetail(body io.Reader) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	if json.Unmarshal(data, &payload) == nil && payload.Detail != "" {
		return payload.Detail
	}
	return ""
}

// FromConfig creates a DocumentClient using CLI configuration.
// This is the canonical way to build clients from CLI commands.
func FromConfig(cfg *config.CLIConfig, log logging.Logger) *DocumentClient {
	opts := DefaultOptions()
	opts.RequestTimeout = cfg.Timeout
	opts.Logger = log
	return NewDocumentClient(cfg.ServerURL, opts)
}
