package llm

import (
	"context"
	"sync"
)

// MockProvider is a Provider that records calls and returns canned
// responses. It is intended for tests in packages that consume a Provider.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Err      error
	ProvName string
	// Handler, when set, computes the response from the request and takes
	// precedence over Response and Err.
	Handler func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

// NewMockProviderWithContent returns a mock whose every completion carries
// the given content.
func NewMockProviderWithContent(content string) *MockProvider {
	m := NewMockProvider("mock")
	m.Response.Content = content
	return m
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	handler, resp, err := m.Handler, m.Response, m.Err
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or the zero value if none.
func (m *MockProvider) LastCall() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return CompletionRequest{}
	}
	return m.Calls[len(m.Calls)-1]
}
