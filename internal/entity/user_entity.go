package entity

import (
	"time"

	"github.com/google/uuid"
)

// User carries an opaque access credential issued once at registration.
// The key is unique, immutable and compared by exact match.
type User struct {
	Id        uuid.UUID
	Username  string
	ApiKey    string
	CreatedAt time.Time
}
