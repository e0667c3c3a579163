package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionFile struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChatSessionId uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_session_filename"`
	Filename      string    `gorm:"type:text;not null;uniqueIndex:idx_session_filename"`
	SizeBytes     int64     `gorm:"not null"`
	Content       string    `gorm:"type:text;not null"`
	UploadedAt    time.Time `gorm:"autoCreateTime"`
}

func (SessionFile) TableName() string {
	return "session_files"
}
