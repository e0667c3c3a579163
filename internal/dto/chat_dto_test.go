package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEventWireFormat(t *testing.T) {
	token, err := json.Marshal(StreamEvent{Type: StreamEventToken, Content: "hel"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"token","content":"hel"}`, string(token))

	done, err := json.Marshal(StreamEvent{Type: StreamEventDone, Content: "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done","content":"hello"}`, string(done))

	errEv, err := json.Marshal(StreamEvent{Type: StreamEventError, Content: "backend failed", Partial: "hel"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","content":"backend failed","partial":"hel"}`, string(errEv))
}

func TestStreamEventOmitsEmptyFields(t *testing.T) {
	// A bare done event carries no content or partial keys at all.
	done, err := json.Marshal(StreamEvent{Type: StreamEventDone})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"done"}`, string(done))
}
