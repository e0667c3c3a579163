package entity

import (
	"time"

	"github.com/google/uuid"
)

// MessageMeta records generation facts for assistant messages. Empty
// for user messages.
type MessageMeta struct {
	FinishReason string `json:"finish_reason,omitempty"`
	OutputChars  int    `json:"output_chars,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
	Model        string `json:"model,omitempty"`
}

// ChatMessage content is immutable once persisted; creation time is the
// canonical conversation order.
type ChatMessage struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	Role          string
	Chat          string
	Meta          *MessageMeta
	CreatedAt     time.Time
}
