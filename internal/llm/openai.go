package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultMaxTokens  = 4096
)

// OpenAIProvider talks to any Chat Completions endpoint. OpenRouter is the
// same client with a different base URL and name.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
}

func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	return newChatCompletions("openai", apiKey, model, baseURL)
}

func NewOpenRouterProvider(apiKey, model, baseURL string) *OpenAIProvider {
	return newChatCompletions("openrouter", apiKey, model, firstNonEmpty(baseURL, openRouterBaseURL))
}

func newChatCompletions(name, apiKey, model, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model, name: name}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	apiReq := openai.ChatCompletionRequest{
		Model:       firstNonEmpty(req.Model, p.model),
		Messages:    chatMessages(req.Messages),
		MaxTokens:   defaultMaxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion (model %s): %w", p.name, apiReq.Model, err)
	}

	out := &CompletionResponse{
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}
	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = string(choice.FinishReason)
	return out, nil
}

func chatMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
