package contract

import (
	"context"

	"codeassist-be/internal/entity"
	"codeassist-be/internal/repository/specification"

	"github.com/google/uuid"
)

type SessionFileRepository interface {
	// Upsert replaces content when (session, filename) already exists.
	Upsert(ctx context.Context, file *entity.SessionFile) error
	Delete(ctx context.Context, sessionId uuid.UUID, filename string) error
	DeleteByChatSessionId(ctx context.Context, sessionId uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.SessionFile, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SessionFile, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
