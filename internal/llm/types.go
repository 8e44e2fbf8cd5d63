package llm

import "context"

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Messages []Message

	// MaxTokens caps the reply length when the provider supports it.
	MaxTokens int

	// If set, called with incremental text deltas (provider-dependent).
	OnTextDelta func(delta string)
}

type Result struct {
	Text string
}

type Client interface {
	Generate(ctx context.Context, req Request) (Result, error)
}
