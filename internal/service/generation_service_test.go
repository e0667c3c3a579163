package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codeassist-be/internal/config"
	"codeassist-be/internal/constant"
	"codeassist-be/internal/dto"
	"codeassist-be/internal/entity"
	"codeassist-be/internal/pkg/serverutils"
	"codeassist-be/internal/repository/memory"
	"codeassist-be/pkg/prompt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Ai: config.AIConfig{
			Provider:           "ollama",
			Model:              "test-model",
			ContextTokenBudget: 4096,
			MaxMessageChars:    100,
			StreamQueueSize:    8,
			TokenIdleTimeout:   2 * time.Second,
		},
		Upload: config.UploadConfig{MaxFileBytes: 512 * 1024},
	}
}

type genFixture struct {
	store    *fakeStore
	registry *memory.HandleRegistry
	svc      IGenerationService
	userId   uuid.UUID
	session  *entity.ChatSession
}

func newGenFixture(t *testing.T, provider *fakeLLM) *genFixture {
	t.Helper()
	return newGenFixtureWithConfig(t, provider, testConfig())
}

func newGenFixtureWithConfig(t *testing.T, provider *fakeLLM, cfg *config.Config) *genFixture {
	t.Helper()

	store := &fakeStore{}
	userId := uuid.New()
	session := &entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     "Session 2026-01-01 00:00:00",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	store.sessions = append(store.sessions, session)

	registry := memory.NewHandleRegistry()
	svc := NewGenerationService(
		&fakeUowFactory{store: store},
		provider,
		prompt.NewHeuristicBuilder("you are a code assistant", cfg.Ai.ContextTokenBudget),
		registry,
		nil,
		nil,
		cfg,
		nopLogger{},
	)

	return &genFixture{
		store:    store,
		registry: registry,
		svc:      svc,
		userId:   userId,
		session:  session,
	}
}

func collectEvents(t *testing.T, stream *GenerationStream) []dto.StreamEvent {
	t.Helper()
	var out []dto.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream events")
		}
	}
}

func TestStartGenerationHappyPath(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{deltas: []string{"Hello", ", ", "world"}})

	stream, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi",
	})
	require.NoError(t, err)

	evs := collectEvents(t, stream)
	require.Len(t, evs, 4)
	for i, want := range []string{"Hello", ", ", "world"} {
		assert.Equal(t, dto.StreamEventToken, evs[i].Type)
		assert.Equal(t, want, evs[i].Content)
	}
	assert.Equal(t, dto.StreamEventDone, evs[3].Type)
	assert.Equal(t, "Hello, world", evs[3].Content)

	// Both sides of the exchange are persisted in order.
	require.Len(t, fx.store.messages, 2)
	assert.Equal(t, constant.ChatMessageRoleUser, fx.store.messages[0].Role)
	assert.Equal(t, "hi", fx.store.messages[0].Chat)
	assistant := fx.store.messages[1]
	assert.Equal(t, constant.ChatMessageRoleAssistant, assistant.Role)
	assert.Equal(t, "Hello, world", assistant.Chat)
	require.NotNil(t, assistant.Meta)
	assert.Equal(t, constant.FinishReasonStop, assistant.Meta.FinishReason)
	assert.Equal(t, len("Hello, world"), assistant.Meta.OutputChars)
	assert.Equal(t, "test-model", assistant.Meta.Model)

	// Handle released: session back to idle.
	assert.Equal(t, 0, fx.registry.Len())
}

func TestStartGenerationBackendErrorPersistsPartial(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{deltas: []string{"par", "tial"}, err: errors.New("connection reset")})

	stream, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi",
	})
	require.NoError(t, err)

	evs := collectEvents(t, stream)
	require.Len(t, evs, 3)
	last := evs[len(evs)-1]
	assert.Equal(t, dto.StreamEventError, last.Type)
	assert.Equal(t, "partial", last.Partial)
	assert.NotContains(t, last.Content, "connection reset") // raw backend error stays internal

	require.Len(t, fx.store.messages, 2)
	assistant := fx.store.messages[1]
	assert.Equal(t, "partial", assistant.Chat)
	require.NotNil(t, assistant.Meta)
	assert.Equal(t, constant.FinishReasonError, assistant.Meta.FinishReason)

	assert.Equal(t, 0, fx.registry.Len())
}

func TestIdleTimeoutYieldsErrorEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Ai.TokenIdleTimeout = 200 * time.Millisecond
	fx := newGenFixtureWithConfig(t, &fakeLLM{deltas: []string{"tok"}, block: true}, cfg)

	stream, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi",
	})
	require.NoError(t, err)

	// The backend stalls after one token; the watchdog has to unstick it.
	evs := collectEvents(t, stream)
	require.Len(t, evs, 2)
	assert.Equal(t, dto.StreamEventToken, evs[0].Type)
	last := evs[1]
	assert.Equal(t, dto.StreamEventError, last.Type)
	assert.Equal(t, "backend stopped producing tokens", last.Content)
	assert.Equal(t, "tok", last.Partial)

	require.Len(t, fx.store.messages, 2)
	assistant := fx.store.messages[1]
	assert.Equal(t, "tok", assistant.Chat)
	require.NotNil(t, assistant.Meta)
	assert.Equal(t, constant.FinishReasonError, assistant.Meta.FinishReason)

	assert.Equal(t, 0, fx.registry.Len())
}

func TestStartGenerationConflict(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{deltas: []string{"x"}, block: true})

	stream, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi",
	})
	require.NoError(t, err)

	_, err = fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "again",
	})
	require.Error(t, err)
	var apiErr *serverutils.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)

	stream.Cancel()
	collectEvents(t, stream)
	assert.Equal(t, 0, fx.registry.Len())
}

func TestCancelPersistsPartialAndFreesSession(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{deltas: []string{"some ", "text"}, block: true})

	stream, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi",
	})
	require.NoError(t, err)

	// Read the two token events, then cancel mid-flight.
	ev1 := <-stream.Events
	ev2 := <-stream.Events
	assert.Equal(t, dto.StreamEventToken, ev1.Type)
	assert.Equal(t, dto.StreamEventToken, ev2.Type)

	require.NoError(t, fx.svc.CancelGeneration(context.Background(), fx.userId, fx.session.Id))

	evs := collectEvents(t, stream)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, dto.StreamEventDone, last.Type)
	assert.Equal(t, "some text", last.Content)

	require.Len(t, fx.store.messages, 2)
	assistant := fx.store.messages[1]
	assert.Equal(t, "some text", assistant.Chat)
	require.NotNil(t, assistant.Meta)
	assert.Equal(t, constant.FinishReasonCancelled, assistant.Meta.FinishReason)

	assert.Equal(t, 0, fx.registry.Len())

	// Session is reusable immediately.
	stream2, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi again",
	})
	require.NoError(t, err)
	stream2.Cancel()
	collectEvents(t, stream2)
}

func TestCancelWithoutGeneration(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{})

	err := fx.svc.CancelGeneration(context.Background(), fx.userId, fx.session.Id)
	var apiErr *serverutils.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestStartGenerationValidation(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{deltas: []string{"x"}})

	cases := []string{"", "   ", strings.Repeat("a", 101)}
	for _, msg := range cases {
		_, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
			SessionId: fx.session.Id,
			Message:   msg,
		})
		var apiErr *serverutils.ApiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 400, apiErr.Status)
	}

	// Nothing was written and no handle leaked.
	assert.Empty(t, fx.store.messages)
	assert.Equal(t, 0, fx.registry.Len())
}

func TestStartGenerationForeignSessionLooksMissing(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{deltas: []string{"x"}})

	otherUser := uuid.New()
	_, err := fx.svc.StartGeneration(context.Background(), otherUser, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi",
	})
	var apiErr *serverutils.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)

	_, err = fx.svc.StartGeneration(context.Background(), otherUser, &dto.StreamChatRequest{
		SessionId: uuid.New(),
		Message:   "hi",
	})
	var apiErr2 *serverutils.ApiError
	require.ErrorAs(t, err, &apiErr2)
	assert.Equal(t, apiErr.Status, apiErr2.Status)
	assert.Equal(t, apiErr.Message, apiErr2.Message)
}

func TestStartGenerationStoreFailureBeforeBackend(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{deltas: []string{"x"}})
	fx.store.failMessageCreate = true

	_, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi",
	})
	require.Error(t, err)

	// Failed persistence must not leave the session busy.
	assert.Equal(t, 0, fx.registry.Len())
}

func TestAssistantStoreFailureYieldsErrorEvent(t *testing.T) {
	fx := newGenFixture(t, &fakeLLM{deltas: []string{"ok"}, block: true})

	stream, err := fx.svc.StartGeneration(context.Background(), fx.userId, &dto.StreamChatRequest{
		SessionId: fx.session.Id,
		Message:   "hi",
	})
	require.NoError(t, err)

	// Wait for streaming to start, then sabotage the store before the
	// assistant message can be written.
	ev := <-stream.Events
	assert.Equal(t, dto.StreamEventToken, ev.Type)
	fx.store.mu.Lock()
	fx.store.failMessageCreate = true
	fx.store.mu.Unlock()
	stream.Cancel()

	evs := collectEvents(t, stream)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, dto.StreamEventError, last.Type)
	assert.Equal(t, "ok", last.Partial)
	assert.Equal(t, 0, fx.registry.Len())
}
