// Package chat holds the conversation model for the docchat CLI: the wire
// frame shapes, the token accumulator for in-flight answers, and the
// session that owns the message log.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TimestampSegment is a labeled time range from a transcribed media asset.
// Produced by the transcription collaborator; read-only here.
type TimestampSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Source is a retrieval citation backing part of an assistant answer.
type Source struct {
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Content    string            `json:"content"`
	Score      float64           `json:"score,omitempty"`
	Timestamp  *TimestampSegment `json:"timestamp,omitempty"`
}

// Frame is one discrete message on the streaming channel.
//
// Inbound frames take one of three shapes:
//
//	{"token": "...", "done": false}
//	{"token": "", "done": true, "sources": [...], "timestamps": [...]}
//	{"error": "..."}
type Frame struct {
	Token      string             `json:"token"`
	Done       bool               `json:"done"`
	Sources    []Source           `json:"sources,omitempty"`
	Timestamps []TimestampSegment `json:"timestamps,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Request is the outbound frame that opens one streaming turn.
type Request struct {
	Message           string `json:"message"`
	IncludeTimestamps bool   `json:"include_timestamps"`
}

// Message is one entry in the conversation log. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage constructs an immutable message with a fresh identifier.
func NewMessage(role Role, content string, sources []Source) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
}
