package dto

import (
	"time"

	"github.com/google/uuid"
)

type SessionFileResponse struct {
	Id         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type UploadFileResponse struct {
	SessionFileResponse
	// Replaced is true when the upload overwrote an existing file
	// with the same name in the session.
	Replaced bool `json:"replaced"`
}
