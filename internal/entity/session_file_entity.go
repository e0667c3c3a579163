package entity

import (
	"time"

	"github.com/google/uuid"
)

// SessionFile is uploaded text content attached to one session as
// generation context. Filename is unique within the session; a
// re-upload of the same name replaces the content.
type SessionFile struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	Filename      string
	SizeBytes     int64
	Content       string
	UploadedAt    time.Time
}
