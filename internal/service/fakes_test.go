package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"codeassist-be/internal/entity"
	"codeassist-be/internal/repository/contract"
	"codeassist-be/internal/repository/specification"
	"codeassist-be/internal/repository/unitofwork"
	"codeassist-be/pkg/llm"

	"github.com/google/uuid"
)

// fakeStore is the shared in-memory backing for the fake repositories.
// One instance per test; the fake unit of work has no real transaction
// semantics, every write is immediate.
type fakeStore struct {
	mu       sync.Mutex
	users    []*entity.User
	sessions []*entity.ChatSession
	messages []*entity.ChatMessage
	files    []*entity.SessionFile

	failMessageCreate bool
}

type fakeUowFactory struct {
	store *fakeStore
}

func (f *fakeUowFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &fakeUow{store: f.store}
}

type fakeUow struct {
	store *fakeStore
}

func (u *fakeUow) Begin(ctx context.Context) error { return nil }
func (u *fakeUow) Commit() error                   { return nil }
func (u *fakeUow) Rollback() error                 { return nil }

func (u *fakeUow) UserRepository() contract.UserRepository {
	return &fakeUserRepo{store: u.store}
}

func (u *fakeUow) ChatSessionRepository() contract.ChatSessionRepository {
	return &fakeSessionRepo{store: u.store}
}

func (u *fakeUow) ChatMessageRepository() contract.ChatMessageRepository {
	return &fakeMessageRepo{store: u.store}
}

func (u *fakeUow) SessionFileRepository() contract.SessionFileRepository {
	return &fakeFileRepo{store: u.store}
}

// --- users ---

type fakeUserRepo struct {
	store *fakeStore
}

func (r *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *user
	r.store.users = append(r.store.users, &cp)
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, u := range r.store.users {
		if u.Id == id {
			r.store.users = append(r.store.users[:i], r.store.users[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeUserRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, u := range r.store.users {
		if userMatches(u, specs) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, u := range r.store.users {
		if userMatches(u, specs) {
			n++
		}
	}
	return n, nil
}

func userMatches(u *entity.User, specs []specification.Specification) bool {
	for _, s := range specs {
		switch sp := s.(type) {
		case specification.ByID:
			if u.Id != sp.ID {
				return false
			}
		case specification.ByUsername:
			if u.Username != sp.Username {
				return false
			}
		case specification.ByApiKey:
			if u.ApiKey != sp.ApiKey {
				return false
			}
		}
	}
	return true
}

// --- sessions ---

type fakeSessionRepo struct {
	store *fakeStore
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *entity.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *session
	r.store.sessions = append(r.store.sessions, &cp)
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *entity.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, s := range r.store.sessions {
		if s.Id == session.Id {
			cp := *session
			r.store.sessions[i] = &cp
			return nil
		}
	}
	return errors.New("session not found")
}

func (r *fakeSessionRepo) Touch(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.sessions {
		if s.Id == id {
			s.UpdatedAt = s.UpdatedAt.Add(1) // monotonic enough for ordering tests
			return nil
		}
	}
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, s := range r.store.sessions {
		if s.Id == id {
			r.store.sessions = append(r.store.sessions[:i], r.store.sessions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.sessions {
		if sessionMatches(s, specs) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.ChatSession
	for _, s := range r.store.sessions {
		if sessionMatches(s, specs) {
			cp := *s
			out = append(out, &cp)
		}
	}
	for _, spec := range specs {
		if ob, ok := spec.(specification.OrderBy); ok && ob.Field == "updated_at" {
			sort.SliceStable(out, func(i, j int) bool {
				if ob.Desc {
					return out[i].UpdatedAt.After(out[j].UpdatedAt)
				}
				return out[i].UpdatedAt.Before(out[j].UpdatedAt)
			})
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := r.FindAll(ctx, specs...)
	return int64(len(all)), nil
}

func sessionMatches(s *entity.ChatSession, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch sp := spec.(type) {
		case specification.ByID:
			if s.Id != sp.ID {
				return false
			}
		case specification.UserOwnedBy:
			if s.UserId != sp.UserID {
				return false
			}
		}
	}
	return true
}

// --- messages ---

type fakeMessageRepo struct {
	store *fakeStore
}

func (r *fakeMessageRepo) Create(ctx context.Context, message *entity.ChatMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failMessageCreate {
		return errors.New("store unavailable")
	}
	cp := *message
	r.store.messages = append(r.store.messages, &cp)
	return nil
}

func (r *fakeMessageRepo) DeleteByChatSessionId(ctx context.Context, sessionId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.messages[:0]
	for _, m := range r.store.messages {
		if m.ChatSessionId != sessionId {
			kept = append(kept, m)
		}
	}
	r.store.messages = kept
	return nil
}

func (r *fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.ChatMessage
	for _, m := range r.store.messages {
		if messageMatches(m, specs) {
			cp := *m
			out = append(out, &cp)
		}
	}
	// insertion order doubles as created_at order in the fake
	for _, spec := range specs {
		if page, ok := spec.(specification.Pagination); ok {
			if page.Offset >= len(out) {
				out = nil
				break
			}
			out = out[page.Offset:]
			if page.Limit < len(out) {
				out = out[:page.Limit]
			}
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := r.FindAll(ctx, specs...)
	return int64(len(all)), nil
}

func messageMatches(m *entity.ChatMessage, specs []specification.Specification) bool {
	for _, spec := range specs {
		if sp, ok := spec.(specification.ByChatSessionID); ok && m.ChatSessionId != sp.ChatSessionID {
			return false
		}
	}
	return true
}

// --- files ---

type fakeFileRepo struct {
	store *fakeStore
}

func (r *fakeFileRepo) Upsert(ctx context.Context, file *entity.SessionFile) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, f := range r.store.files {
		if f.ChatSessionId == file.ChatSessionId && f.Filename == file.Filename {
			f.Content = file.Content
			f.SizeBytes = file.SizeBytes
			f.UploadedAt = file.UploadedAt
			return nil
		}
	}
	cp := *file
	r.store.files = append(r.store.files, &cp)
	return nil
}

func (r *fakeFileRepo) Delete(ctx context.Context, sessionId uuid.UUID, filename string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, f := range r.store.files {
		if f.ChatSessionId == sessionId && f.Filename == filename {
			r.store.files = append(r.store.files[:i], r.store.files[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeFileRepo) DeleteByChatSessionId(ctx context.Context, sessionId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.files[:0]
	for _, f := range r.store.files {
		if f.ChatSessionId != sessionId {
			kept = append(kept, f)
		}
	}
	r.store.files = kept
	return nil
}

func (r *fakeFileRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.SessionFile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, f := range r.store.files {
		if fileMatches(f, specs) {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeFileRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SessionFile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.SessionFile
	for _, f := range r.store.files {
		if fileMatches(f, specs) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := r.FindAll(ctx, specs...)
	return int64(len(all)), nil
}

func fileMatches(f *entity.SessionFile, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch sp := spec.(type) {
		case specification.ByChatSessionID:
			if f.ChatSessionId != sp.ChatSessionID {
				return false
			}
		case specification.ByFilename:
			if f.Filename != sp.Filename {
				return false
			}
		}
	}
	return true
}

// --- llm ---

// fakeLLM replays scripted deltas. err is returned after the deltas;
// block makes it hang until the context is cancelled instead.
type fakeLLM struct {
	deltas []string
	err    error
	block  bool
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	var sb []byte
	for _, d := range f.deltas {
		sb = append(sb, d...)
	}
	return string(sb), f.err
}

func (f *fakeLLM) ChatStream(ctx context.Context, history []llm.Message, onDelta llm.StreamHandler, options ...llm.Option) error {
	for _, d := range f.deltas {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := onDelta(d); err != nil {
			return err
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

// --- logger ---

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }
