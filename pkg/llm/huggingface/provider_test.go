package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeassist-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStreamDeliversFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "test-model", req.Model)

		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	p := NewHuggingFaceProvider("secret-key", srv.URL, "test-model")

	var got []string
	err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestChatStreamFinishReasonEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"done"},"finish_reason":"stop"}]}`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"never delivered"}}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	p := NewHuggingFaceProvider("k", srv.URL, "m")

	var got []string
	err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, got)
}

func TestChatStreamRoleMapping(t *testing.T) {
	var received []chatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = req.Messages
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	p := NewHuggingFaceProvider("k", srv.URL, "m")
	history := []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleFile, Content: "file: a.go"},
		{Role: llm.RoleUser, Content: "q"},
	}
	require.NoError(t, p.ChatStream(context.Background(), history, func(string) error { return nil }))

	require.Len(t, received, 3)
	assert.Equal(t, "system", received[0].Role)
	assert.Equal(t, "system", received[1].Role)
	assert.Equal(t, "user", received[2].Role)
}

func TestChatStreamErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"par"}}]}`)
		fmt.Fprintln(w, `data: {"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	p := NewHuggingFaceProvider("k", srv.URL, "m")

	var got []string
	err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, []string{"par"}, got)
}

func TestChatStreamNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewHuggingFaceProvider("bad-key", srv.URL, "m")
	err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		fmt.Fprintln(w, `{"choices":[{"message":{"content":"full answer"}}]}`)
	}))
	defer srv.Close()

	p := NewHuggingFaceProvider("k", srv.URL, "m")
	out, err := p.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "full answer", out)
}

func TestDefaultBaseURL(t *testing.T) {
	p := NewHuggingFaceProvider("k", "", "m")
	assert.Equal(t, "https://router.huggingface.co/v1", p.baseURL)
}
