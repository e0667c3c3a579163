package llm

import (
	"context"
)

// Standard role tags. Providers with no native "file" role map it to a
// system segment before sending.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFile      = "file"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "system", "user", "assistant", "file"
	Content string
}

// StreamHandler receives one incremental text fragment per call, in the
// order the backend produced them. Returning an error aborts the stream.
type StreamHandler func(delta string) error

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the full response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// ChatStream sends a chat history and delivers the response
	// incrementally through onDelta. The stream is finite and not
	// restartable; it ends when ChatStream returns.
	ChatStream(ctx context.Context, history []Message, onDelta StreamHandler, options ...Option) error
}
