package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"codeassist-be/pkg/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandle(sessionId uuid.UUID) *store.GenerationHandle {
	_, cancel := context.WithCancel(context.Background())
	return store.NewGenerationHandle(sessionId, uuid.New(), cancel)
}

func TestAcquireRelease(t *testing.T) {
	r := NewHandleRegistry()
	sessionId := uuid.New()

	require.NoError(t, r.Acquire(newHandle(sessionId)))

	err := r.Acquire(newHandle(sessionId))
	assert.ErrorIs(t, err, ErrGenerationInFlight)

	r.Release(sessionId)
	assert.NoError(t, r.Acquire(newHandle(sessionId)))
}

func TestAcquireIsPerSession(t *testing.T) {
	r := NewHandleRegistry()

	require.NoError(t, r.Acquire(newHandle(uuid.New())))
	require.NoError(t, r.Acquire(newHandle(uuid.New())))
	assert.Equal(t, 2, r.Len())
}

func TestGet(t *testing.T) {
	r := NewHandleRegistry()
	sessionId := uuid.New()

	_, found := r.Get(sessionId)
	assert.False(t, found)

	h := newHandle(sessionId)
	require.NoError(t, r.Acquire(h))

	got, found := r.Get(sessionId)
	require.True(t, found)
	assert.Same(t, h, got)
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	r := NewHandleRegistry()
	sessionId := uuid.New()

	const workers = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.Acquire(newHandle(sessionId)) == nil {
				wins.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, r.Len())
}
