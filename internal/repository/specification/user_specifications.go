package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByUsername struct {
	Username string
}

func (s ByUsername) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("username = ?", s.Username)
}

// ByApiKey matches the opaque credential exactly.
type ByApiKey struct {
	ApiKey string
}

func (s ByApiKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("api_key = ?", s.ApiKey)
}

// UserOwnedBy scopes a query to one user's rows. Combined with ByID it
// makes foreign sessions indistinguishable from missing ones.
type UserOwnedBy struct {
	UserID uuid.UUID
}

func (s UserOwnedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}
