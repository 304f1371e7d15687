package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/otherjamesbrown/docchat-cli/pkg/chat"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
)

// ChatClient talks to the non-streaming chat service: simple Q&A, history
// retrieval, and history clearing. The streaming path lives in
// StreamClient; this client is the fallback and the history source.
type ChatClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
}

// NewChatClient creates a client for the chat service.
func NewChatClient(baseURL string, opts *ClientOptions) *ChatClient {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.RequestTimeout},
		log:     log,
	}
}

// ChatResponse is the non-streaming chat answer with its retrieval payload.
type ChatResponse struct {
	Message    string                  `json:"message"`
	Sources    []chat.Source           `json:"sources"`
	Timestamps []chat.TimestampSegment `json:"timestamps"`
}

// SendMessage asks a question about a document and waits for the full
// answer. Used when the streaming transport reports not-ready.
func (c *ChatClient) SendMessage(ctx context.Context, documentID, message string, includeTimestamps bool) (*ChatResponse, error) {
	payload := struct {
		DocumentID        string `json:"document_id"`
		Message           string `json:"message"`
		IncludeTimestamps bool   `json:"include_timestamps"`
	}{documentID, message, includeTimestamps}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat message: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, fmt.Errorf("chat request for %s: %w", documentID, err)
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	return &out, nil
}

// historyMessage is the history service's message shape. The service calls
// the creation time "timestamp"; the local model calls it CreatedAt.
type historyMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Sources   []chat.Source `json:"sources"`
}

// GetHistory returns the stored conversation for a document, oldest first.
func (c *ChatClient) GetHistory(ctx context.Context, documentID string) ([]chat.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/history/"+url.PathEscape(documentID), nil)
	if err != nil {
		return nil, fmt.Errorf("building history request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getting history for %s: %w", documentID, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, fmt.Errorf("history request for %s: %w", documentID, err)
	}

	var payload struct {
		DocumentID string           `json:"document_id"`
		Messages   []historyMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}

	messages := make([]chat.Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		messages = append(messages, chat.Message{
			Role:      chat.Role(m.Role),
			Content:   m.Content,
			Sources:   m.Sources,
			CreatedAt: m.Timestamp,
		})
	}
	return messages, nil
}

// ClearHistory deletes the stored conversation for a document.
func (c *ChatClient) ClearHistory(ctx context.Context, documentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/chat/history/"+url.PathEscape(documentID), nil)
	if err != nil {
		return fmt.Errorf("building clear-history request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("clearing history for %s: %w", documentID, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return fmt.Errorf("clear-history request for %s: %w", documentID, err)
	}
	return nil
}

// ServiceStatus is the chat service's health report.
type ServiceStatus struct {
	Status string `json:"status"`
}

// GetServiceStatus reports whether the chat service and its model backend
// are reachable.
func (c *ChatClient) GetServiceStatus(ctx context.Context) (*ServiceStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/status", nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getting chat status: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, fmt.Errorf("chat status request: %w", err)
	}

	var out ServiceStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding chat status: %w", err)
	}
	return &out, nil
}
