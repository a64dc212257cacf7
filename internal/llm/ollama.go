package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed response ends up in the error.
const maxErrorBody = 4 << 10

// OllamaProvider talks to a local or self-hosted Ollama server through its
// /api/chat endpoint. Requests are never streamed.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Model           string        `json:"model"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	chat := ollamaChatRequest{
		Model:    req.Model,
		Messages: make([]ollamaMessage, len(req.Messages)),
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}
	if chat.Model == "" {
		chat.Model = p.model
	}
	for i, m := range req.Messages {
		chat.Messages[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}
	if req.JSONMode {
		chat.Format = "json"
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(chat); err != nil {
		return nil, fmt.Errorf("encoding ollama chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating ollama chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling ollama chat: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, ollamaError(httpResp)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding ollama chat response: %w", err)
	}
	if !out.Done {
		return nil, errors.New("ollama chat response is incomplete")
	}
	return &CompletionResponse{
		Content:      out.Message.Content,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		Model:        out.Model,
		FinishReason: out.DoneReason,
	}, nil
}

// ollamaError prefers the server's {"error": "..."} message over the raw body.
func ollamaError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, msg)
}
