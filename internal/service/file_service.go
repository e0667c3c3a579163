package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"

	"codeassist-be/internal/config"
	"codeassist-be/internal/dto"
	"codeassist-be/internal/entity"
	"codeassist-be/internal/pkg/serverutils"
	"codeassist-be/internal/repository/specification"
	"codeassist-be/internal/repository/unitofwork"
	"codeassist-be/pkg/prompt"

	"github.com/google/uuid"
)

type IFileService interface {
	UploadFile(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, filename string, content []byte) (*dto.UploadFileResponse, error)
	GetFiles(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.SessionFileResponse, error)
	DeleteFile(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, filename string) error
}

type fileService struct {
	uowFactory    unitofwork.RepositoryFactory
	promptBuilder *prompt.Builder
	cfg           *config.Config
}

func NewFileService(uowFactory unitofwork.RepositoryFactory, promptBuilder *prompt.Builder, cfg *config.Config) IFileService {
	return &fileService{
		uowFactory:    uowFactory,
		promptBuilder: promptBuilder,
		cfg:           cfg,
	}
}

// sanitizeFilename strips any path component from an uploaded name.
// "../../etc/passwd" becomes "passwd"; names that reduce to nothing are
// rejected.
func sanitizeFilename(name string) (string, error) {
	base := filepath.Base(filepath.Clean(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", serverutils.NewValidationError("invalid filename")
	}
	return base, nil
}

func (s *fileService) UploadFile(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, filename string, content []byte) (*dto.UploadFileResponse, error) {
	name, err := sanitizeFilename(filename)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > s.cfg.Upload.MaxFileBytes {
		return nil, serverutils.NewValidationError(fmt.Sprintf("file exceeds the %d byte limit", s.cfg.Upload.MaxFileBytes))
	}
	if !utf8.Valid(content) {
		return nil, serverutils.NewValidationError("file must be valid utf-8 text")
	}

	text := string(content)
	if !s.promptBuilder.FileFits(prompt.File{Name: name, Content: text}) {
		return nil, serverutils.NewValidationError("file is too large for the model context window")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	existing, err := uow.SessionFileRepository().FindOne(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.ByFilename{Filename: name},
	)
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	file := &entity.SessionFile{
		Id:            uuid.New(),
		ChatSessionId: sessionId,
		Filename:      name,
		SizeBytes:     int64(len(content)),
		Content:       text,
		UploadedAt:    time.Now(),
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	defer uow.Rollback()

	if err := uow.SessionFileRepository().Upsert(ctx, file); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	// Upsert keeps the original row id when replacing.
	if existing != nil {
		file.Id = existing.Id
	}

	return &dto.UploadFileResponse{
		SessionFileResponse: dto.SessionFileResponse{
			Id:         file.Id,
			Filename:   file.Filename,
			SizeBytes:  file.SizeBytes,
			UploadedAt: file.UploadedAt,
		},
		Replaced: existing != nil,
	}, nil
}

func (s *fileService) GetFiles(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.SessionFileResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	files, err := uow.SessionFileRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "uploaded_at", Desc: false},
	)
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	resp := make([]*dto.SessionFileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, &dto.SessionFileResponse{
			Id:         f.Id,
			Filename:   f.Filename,
			SizeBytes:  f.SizeBytes,
			UploadedAt: f.UploadedAt,
		})
	}
	return resp, nil
}

func (s *fileService) DeleteFile(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, filename string) error {
	name, err := sanitizeFilename(filename)
	if err != nil {
		return err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return err
	}

	existing, err := uow.SessionFileRepository().FindOne(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.ByFilename{Filename: name},
	)
	if err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}
	if existing == nil {
		return serverutils.NewNotFoundError("file not found")
	}

	if err := uow.Begin(ctx); err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}
	defer uow.Rollback()

	if err := uow.SessionFileRepository().Delete(ctx, sessionId, name); err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}
	if err := uow.Commit(); err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}
	return nil
}
