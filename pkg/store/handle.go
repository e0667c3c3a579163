package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerationHandle is the ephemeral in-memory state of one in-flight
// generation. At most one exists per session; the registry enforces
// that. It owns the cancellation signal and the text accumulated so
// far, so every exit path (done, error, cancel, disconnect) can persist
// exactly what was streamed.
type GenerationHandle struct {
	SessionId uuid.UUID
	UserId    uuid.UUID
	StartedAt time.Time

	cancel context.CancelFunc

	mu      sync.Mutex
	partial strings.Builder
}

func NewGenerationHandle(sessionId, userId uuid.UUID, cancel context.CancelFunc) *GenerationHandle {
	return &GenerationHandle{
		SessionId: sessionId,
		UserId:    userId,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
}

// Append records one streamed fragment.
func (h *GenerationHandle) Append(delta string) {
	h.mu.Lock()
	h.partial.WriteString(delta)
	h.mu.Unlock()
}

// Text returns everything accumulated so far.
func (h *GenerationHandle) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.partial.String()
}

// Cancel signals the generation loop to stop. Cooperative: the loop
// finishes its pending persistence before tearing the handle down.
func (h *GenerationHandle) Cancel() {
	h.cancel()
}
