// Package llm is the completion layer behind question classification and
// synthetic answers. Providers are interchangeable behind Provider.
package llm

import "context"

// Provider completes chat-style requests.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Prompt is the two-message conversation every caller in this module sends:
// instructions, then the question material.
func Prompt(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

// CompletionRequest is provider neutral. JSONMode asks the provider for a
// single JSON object where it supports that.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}

// Truncated reports whether the provider stopped at the token limit. The
// finish reason is "length" for OpenAI and Ollama, "max_tokens" for Anthropic.
func (r *CompletionResponse) Truncated() bool {
	return r.FinishReason == "length" || r.FinishReason == "max_tokens"
}
