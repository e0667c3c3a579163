package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"codeassist-be/internal/config"
	"codeassist-be/internal/constant"
	"codeassist-be/internal/dto"
	"codeassist-be/internal/entity"
	"codeassist-be/internal/pkg/logger"
	"codeassist-be/internal/pkg/serverutils"
	"codeassist-be/internal/repository/memory"
	"codeassist-be/internal/repository/specification"
	"codeassist-be/internal/repository/unitofwork"
	"codeassist-be/pkg/events"
	"codeassist-be/pkg/llm"
	pkgNats "codeassist-be/pkg/nats"
	"codeassist-be/pkg/prompt"
	"codeassist-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// GenerationStream is what the transport layer consumes: a buffered
// event channel and a cancel hook for when the client goes away. The
// channel is closed by the engine after the terminal event; the reader
// must drain it to completion so teardown never blocks.
type GenerationStream struct {
	Events <-chan dto.StreamEvent

	handle *store.GenerationHandle
}

// Cancel requests cooperative shutdown of the generation. Persistence
// of whatever streamed so far still happens before the channel closes.
func (g *GenerationStream) Cancel() {
	g.handle.Cancel()
}

type IGenerationService interface {
	StartGeneration(ctx context.Context, userId uuid.UUID, req *dto.StreamChatRequest) (*GenerationStream, error)
	CancelGeneration(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error
}

type generationService struct {
	uowFactory     unitofwork.RepositoryFactory
	llmProvider    llm.LLMProvider
	promptBuilder  *prompt.Builder
	registry       *memory.HandleRegistry
	publisher      message.Publisher
	eventPublisher *pkgNats.Publisher
	cfg            *config.Config
	log            logger.ILogger
}

func NewGenerationService(
	uowFactory unitofwork.RepositoryFactory,
	llmProvider llm.LLMProvider,
	promptBuilder *prompt.Builder,
	registry *memory.HandleRegistry,
	publisher message.Publisher,
	eventPublisher *pkgNats.Publisher,
	cfg *config.Config,
	log logger.ILogger,
) IGenerationService {
	return &generationService{
		uowFactory:     uowFactory,
		llmProvider:    llmProvider,
		promptBuilder:  promptBuilder,
		registry:       registry,
		publisher:      publisher,
		eventPublisher: eventPublisher,
		cfg:            cfg,
		log:            log,
	}
}

// StartGeneration runs the whole pre-flight synchronously (validation,
// ownership, single-flight acquire, user message persistence, context
// assembly) so every rejection happens before the SSE stream opens.
// Only the backend call and the store writes that follow it run in the
// background goroutine.
func (s *generationService) StartGeneration(ctx context.Context, userId uuid.UUID, req *dto.StreamChatRequest) (*GenerationStream, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, serverutils.NewValidationError("message must not be empty")
	}
	if utf8.RuneCountInString(text) > s.cfg.Ai.MaxMessageChars {
		return nil, serverutils.NewValidationError("message is too long")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, req.SessionId); err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithCancel(context.Background())
	handle := store.NewGenerationHandle(req.SessionId, userId, cancel)
	if err := s.registry.Acquire(handle); err != nil {
		cancel()
		return nil, serverutils.NewConflictError("a generation is already running for this session")
	}

	// Everything below must release the handle on failure or the
	// session stays busy forever.
	history, files, err := s.loadContext(ctx, uow, req.SessionId)
	if err != nil {
		s.teardown(handle)
		return nil, err
	}

	userMessage := &entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: req.SessionId,
		Role:          constant.ChatMessageRoleUser,
		Chat:          text,
		CreatedAt:     time.Now(),
	}
	if err := s.persistMessage(ctx, userMessage); err != nil {
		s.teardown(handle)
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	messages := s.promptBuilder.Build(history, files, text)
	eventCh := make(chan dto.StreamEvent, s.cfg.Ai.StreamQueueSize)

	go s.run(genCtx, handle, eventCh, messages, text)

	return &GenerationStream{Events: eventCh, handle: handle}, nil
}

// CancelGeneration signals the session's live generation to stop. The
// running engine persists the partial text and emits its terminal event
// on its own; nothing to wait for here.
func (s *generationService) CancelGeneration(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if _, err := findOwnedSession(ctx, uow, userId, sessionId); err != nil {
		return err
	}

	handle, ok := s.registry.Get(sessionId)
	if !ok {
		return serverutils.NewNotFoundError("no generation in flight for this session")
	}
	handle.Cancel()
	return nil
}

// loadContext fetches prior turns (oldest first) and the session's
// uploaded files for prompt assembly.
func (s *generationService) loadContext(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) ([]llm.Message, []prompt.File, error) {
	stored, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, nil, serverutils.NewStoreError("storage failure", err)
	}

	history := make([]llm.Message, 0, len(stored))
	for _, msg := range stored {
		role := llm.RoleUser
		if msg.Role == constant.ChatMessageRoleAssistant {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: msg.Chat})
	}

	storedFiles, err := uow.SessionFileRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "uploaded_at", Desc: false},
	)
	if err != nil {
		return nil, nil, serverutils.NewStoreError("storage failure", err)
	}

	files := make([]prompt.File, 0, len(storedFiles))
	for _, f := range storedFiles {
		files = append(files, prompt.File{Name: f.Filename, Content: f.Content})
	}

	return history, files, nil
}

// run drives one generation end to end: stream from the backend,
// persist the outcome, emit exactly one terminal event, tear down.
func (s *generationService) run(genCtx context.Context, handle *store.GenerationHandle, eventCh chan<- dto.StreamEvent, messages []llm.Message, userText string) {
	defer close(eventCh)
	defer s.teardown(handle)

	idleTimeout := s.cfg.Ai.TokenIdleTimeout
	var idleFired atomic.Bool
	watchdog := time.AfterFunc(idleTimeout, func() {
		idleFired.Store(true)
		handle.Cancel()
	})
	defer watchdog.Stop()

	streamErr := s.llmProvider.ChatStream(genCtx, messages, func(delta string) error {
		watchdog.Reset(idleTimeout)
		handle.Append(delta)
		select {
		case eventCh <- dto.StreamEvent{Type: dto.StreamEventToken, Content: delta}:
			return nil
		case <-genCtx.Done():
			return genCtx.Err()
		}
	}, llm.WithModel(s.cfg.Ai.Model))
	watchdog.Stop()

	full := handle.Text()
	finishReason := constant.FinishReasonStop
	errMessage := ""

	switch {
	case streamErr == nil:
	case idleFired.Load():
		finishReason = constant.FinishReasonError
		errMessage = "backend stopped producing tokens"
	case errors.Is(streamErr, context.Canceled):
		finishReason = constant.FinishReasonCancelled
	default:
		finishReason = constant.FinishReasonError
		errMessage = "generation backend failed"
		s.log.Error("generation", "backend stream failed", map[string]interface{}{
			"error":      streamErr,
			"session_id": handle.SessionId.String(),
		})
	}

	// The request context is long gone on most exit paths; persistence
	// gets its own deadline.
	storeCtx, cancelStore := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStore()

	var assistantMsg *entity.ChatMessage
	if full != "" {
		assistantMsg = &entity.ChatMessage{
			Id:            uuid.New(),
			ChatSessionId: handle.SessionId,
			Role:          constant.ChatMessageRoleAssistant,
			Chat:          full,
			Meta: &entity.MessageMeta{
				FinishReason: finishReason,
				OutputChars:  utf8.RuneCountInString(full),
				DurationMs:   time.Since(handle.StartedAt).Milliseconds(),
				Model:        s.cfg.Ai.Model,
			},
			CreatedAt: time.Now(),
		}
		if err := s.persistMessage(storeCtx, assistantMsg); err != nil {
			s.log.Error("generation", "failed to persist assistant message", map[string]interface{}{
				"error":      err,
				"session_id": handle.SessionId.String(),
			})
			finishReason = constant.FinishReasonError
			errMessage = "failed to store the response"
			assistantMsg = nil
		}
	}

	// Exactly one terminal event. The transport drains the channel even
	// after a write failure, so a plain send cannot wedge here.
	switch finishReason {
	case constant.FinishReasonError:
		eventCh <- dto.StreamEvent{Type: dto.StreamEventError, Content: errMessage, Partial: full}
	default:
		eventCh <- dto.StreamEvent{Type: dto.StreamEventDone, Content: full}
	}

	if assistantMsg != nil {
		s.publishCompleted(handle, assistantMsg, finishReason, userText)
	}
}

// persistMessage writes one message and touches its session's
// updated_at inside a single transaction.
func (s *generationService) persistMessage(ctx context.Context, msg *entity.ChatMessage) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().Create(ctx, msg); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Touch(ctx, msg.ChatSessionId); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *generationService) teardown(handle *store.GenerationHandle) {
	handle.Cancel()
	s.registry.Release(handle.SessionId)
}

// publishCompleted fans the completion out: the in-process bus feeds
// the title consumer and the websocket hub, NATS feeds anything outside
// this process. Both are best effort.
func (s *generationService) publishCompleted(handle *store.GenerationHandle, msg *entity.ChatMessage, finishReason, userText string) {
	payload := dto.GenerationCompletedPayload{
		SessionId:    handle.SessionId,
		UserId:       handle.UserId,
		MessageId:    msg.Id,
		FinishReason: finishReason,
		OutputChars:  msg.Meta.OutputChars,
		FirstMessage: userText,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(constant.GenerationCompletedTopic, message.NewMessage(watermill.NewUUID(), raw)); err != nil {
			s.log.Warn("generation", "failed to publish completion to bus", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if s.eventPublisher != nil {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.eventPublisher.Publish(pubCtx, events.BaseEvent{
			Type: constant.GenerationCompletedTopic,
			Data: map[string]interface{}{
				"session_id":    payload.SessionId.String(),
				"user_id":       payload.UserId.String(),
				"message_id":    payload.MessageId.String(),
				"finish_reason": payload.FinishReason,
				"output_chars":  payload.OutputChars,
			},
			OccurredAt: time.Now(),
		})
	}
}
