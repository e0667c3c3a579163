package memory

import (
	"errors"

	"codeassist-be/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ErrGenerationInFlight is returned by Acquire when the session already
// has a live generation.
var ErrGenerationInFlight = errors.New("generation already in flight for this session")

// HandleRegistry tracks the live GenerationHandle per session. Add on
// go-cache is an atomic insert-if-absent, which makes Acquire the
// single-flight gate without any extra locking here.
type HandleRegistry struct {
	cache *cache.Cache
}

func NewHandleRegistry() *HandleRegistry {
	// Handles never expire on their own: the generation loop releases
	// them on every exit path.
	return &HandleRegistry{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

// Acquire registers the handle as the session's single in-flight
// generation. Fails with ErrGenerationInFlight if one is already live.
func (r *HandleRegistry) Acquire(h *store.GenerationHandle) error {
	if err := r.cache.Add(h.SessionId.String(), h, cache.NoExpiration); err != nil {
		return ErrGenerationInFlight
	}
	return nil
}

// Get returns the live handle for a session, if any.
func (r *HandleRegistry) Get(sessionId uuid.UUID) (*store.GenerationHandle, bool) {
	if x, found := r.cache.Get(sessionId.String()); found {
		return x.(*store.GenerationHandle), true
	}
	return nil, false
}

// Release destroys the session's handle.
func (r *HandleRegistry) Release(sessionId uuid.UUID) {
	r.cache.Delete(sessionId.String())
}

// Len reports the number of live handles (all sessions).
func (r *HandleRegistry) Len() int {
	return r.cache.ItemCount()
}
