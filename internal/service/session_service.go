package service

import (
	"context"
	"fmt"
	"time"

	"codeassist-be/internal/dto"
	"codeassist-be/internal/entity"
	"codeassist-be/internal/pkg/serverutils"
	"codeassist-be/internal/repository/memory"
	"codeassist-be/internal/repository/specification"
	"codeassist-be/internal/repository/unitofwork"
	"codeassist-be/pkg/events"
	pkgNats "codeassist-be/pkg/nats"

	"github.com/google/uuid"
)

type ISessionService interface {
	CreateSession(ctx context.Context, userId uuid.UUID, req *dto.CreateChatSessionRequest) (*dto.ChatSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.ChatSessionResponse, error)
	RenameSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, req *dto.RenameChatSessionRequest) (*dto.ChatSessionResponse, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error
	GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, limit, offset int) ([]*dto.ChatMessageResponse, error)
}

type sessionService struct {
	uowFactory     unitofwork.RepositoryFactory
	registry       *memory.HandleRegistry
	eventPublisher *pkgNats.Publisher
}

func NewSessionService(uowFactory unitofwork.RepositoryFactory, registry *memory.HandleRegistry, eventPublisher *pkgNats.Publisher) ISessionService {
	return &sessionService{
		uowFactory:     uowFactory,
		registry:       registry,
		eventPublisher: eventPublisher,
	}
}

// findOwnedSession loads a session scoped to its owner. A session that
// exists but belongs to someone else comes back as not found, same as
// one that never existed.
func findOwnedSession(ctx context.Context, uow unitofwork.UnitOfWork, userId, sessionId uuid.UUID) (*entity.ChatSession, error) {
	sess, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	if sess == nil {
		return nil, serverutils.NewNotFoundError("session not found")
	}
	return sess, nil
}

func (s *sessionService) CreateSession(ctx context.Context, userId uuid.UUID, req *dto.CreateChatSessionRequest) (*dto.ChatSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	now := time.Now()

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("Session %s", now.Format("2006-01-02 15:04:05"))
	}

	sess := &entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	defer uow.Rollback()

	if err := uow.ChatSessionRepository().Create(ctx, sess); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	return toSessionResponse(sess), nil
}

func (s *sessionService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.ChatSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "updated_at", Desc: true},
	)
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	resp := make([]*dto.ChatSessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, toSessionResponse(sess))
	}
	return resp, nil
}

func (s *sessionService) RenameSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, req *dto.RenameChatSessionRequest) (*dto.ChatSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	sess, err := findOwnedSession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	sess.Title = req.Title
	sess.UpdatedAt = time.Now()

	if err := uow.Begin(ctx); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	defer uow.Rollback()

	if err := uow.ChatSessionRepository().Update(ctx, sess); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	return toSessionResponse(sess), nil
}

func (s *sessionService) DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return err
	}

	// Stop any in-flight generation before the rows go away. The
	// engine handles its own teardown once the context is cancelled.
	if handle, ok := s.registry.Get(sessionId); ok {
		handle.Cancel()
	}

	if err := uow.Begin(ctx); err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}
	if err := uow.SessionFileRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}

	if err := uow.Commit(); err != nil {
		return serverutils.NewStoreError("storage failure", err)
	}

	if s.eventPublisher != nil {
		go func() {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.eventPublisher.Publish(pubCtx, events.BaseEvent{
				Type:       "SESSION_DELETED",
				Data:       map[string]interface{}{"session_id": sessionId.String(), "user_id": userId.String()},
				OccurredAt: time.Now(),
			})
		}()
	}
	return nil
}

func (s *sessionService) GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, limit, offset int) ([]*dto.ChatMessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	specs := []specification.Specification{
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	}
	// Without a limit the full transcript comes back, oldest first.
	if limit > 0 {
		specs = append(specs, specification.Pagination{Limit: limit, Offset: offset})
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	resp := make([]*dto.ChatMessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, toMessageResponse(msg))
	}
	return resp, nil
}

func toSessionResponse(sess *entity.ChatSession) *dto.ChatSessionResponse {
	return &dto.ChatSessionResponse{
		Id:        sess.Id,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}

func toMessageResponse(msg *entity.ChatMessage) *dto.ChatMessageResponse {
	resp := &dto.ChatMessageResponse{
		Id:        msg.Id,
		Role:      msg.Role,
		Chat:      msg.Chat,
		CreatedAt: msg.CreatedAt,
	}
	if msg.Meta != nil {
		resp.Meta = &dto.MessageMetaResponse{
			FinishReason: msg.Meta.FinishReason,
			OutputChars:  msg.Meta.OutputChars,
			DurationMs:   msg.Meta.DurationMs,
			Model:        msg.Meta.Model,
		}
	}
	return resp
}
