package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateChatSessionRequest struct {
	Title string `json:"title" validate:"omitempty,max=255"`
}

type RenameChatSessionRequest struct {
	Title string `json:"title" validate:"required,min=1,max=255"`
}

type ChatSessionResponse struct {
	Id        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatMessageResponse struct {
	Id        uuid.UUID            `json:"id"`
	Role      string               `json:"role"`
	Chat      string               `json:"chat"`
	Meta      *MessageMetaResponse `json:"meta,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

type MessageMetaResponse struct {
	FinishReason string `json:"finish_reason,omitempty"`
	OutputChars  int    `json:"output_chars,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
	Model        string `json:"model,omitempty"`
}

type StreamChatRequest struct {
	SessionId uuid.UUID `json:"session_id" validate:"required"`
	Message   string    `json:"message" validate:"required"`
}

// StreamEvent is the wire shape of one SSE data frame.
//
//	{"type":"token","content":"..."}
//	{"type":"done"}
//	{"type":"error","content":"...","partial":"..."}
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Partial string `json:"partial,omitempty"`
}

const (
	StreamEventToken = "token"
	StreamEventDone  = "done"
	StreamEventError = "error"
)

// GenerationCompletedPayload is published on the internal bus and to
// NATS after an assistant message is persisted.
type GenerationCompletedPayload struct {
	SessionId    uuid.UUID `json:"session_id"`
	UserId       uuid.UUID `json:"user_id"`
	MessageId    uuid.UUID `json:"message_id"`
	FinishReason string    `json:"finish_reason"`
	OutputChars  int       `json:"output_chars"`
	FirstMessage string    `json:"first_message,omitempty"`
}
