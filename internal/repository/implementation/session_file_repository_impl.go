package implementation

import (
	"context"
	"errors"

	"codeassist-be/internal/entity"
	"codeassist-be/internal/mapper"
	"codeassist-be/internal/model"
	"codeassist-be/internal/repository/contract"
	"codeassist-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionFileRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.FileMapper
}

func NewSessionFileRepository(db *gorm.DB) contract.SessionFileRepository {
	return &SessionFileRepositoryImpl{
		db:     db,
		mapper: mapper.NewFileMapper(),
	}
}

func (r *SessionFileRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// Upsert inserts or, on (chat_session_id, filename) conflict, replaces
// the stored content and size.
func (r *SessionFileRepositoryImpl) Upsert(ctx context.Context, file *entity.SessionFile) error {
	m := r.mapper.ToModel(file)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_session_id"}, {Name: "filename"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"content":     m.Content,
			"size_bytes":  m.SizeBytes,
			"uploaded_at": m.UploadedAt,
		}),
	}).Create(m).Error
	if err != nil {
		return err
	}
	*file = *r.mapper.ToEntity(m)
	return nil
}

func (r *SessionFileRepositoryImpl) Delete(ctx context.Context, sessionId uuid.UUID, filename string) error {
	return r.db.WithContext(ctx).
		Where("chat_session_id = ? AND filename = ?", sessionId, filename).
		Delete(&model.SessionFile{}).Error
}

func (r *SessionFileRepositoryImpl) DeleteByChatSessionId(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("chat_session_id = ?", sessionId).Delete(&model.SessionFile{}).Error
}

func (r *SessionFileRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.SessionFile, error) {
	var m model.SessionFile
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *SessionFileRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SessionFile, error) {
	var models []*model.SessionFile
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.SessionFile, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *SessionFileRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.SessionFile{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
