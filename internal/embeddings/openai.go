package embeddings

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// maxBatchSize bounds the inputs per CreateEmbeddings call.
const maxBatchSize = 100

// OpenAIModel is an OpenAI embedding model name.
type OpenAIModel string

const (
	ModelTextEmbedding3Small OpenAIModel = "text-embedding-3-small"
	ModelTextEmbedding3Large OpenAIModel = "text-embedding-3-large"
)

func (m OpenAIModel) nativeDimensions() int {
	if m == ModelTextEmbedding3Large {
		return 3072
	}
	return 1536
}

// shortenable reports whether the model accepts a dimensions parameter.
func (m OpenAIModel) shortenable() bool {
	return strings.HasPrefix(string(m), "text-embedding-3")
}

// OpenAIEmbedder calls the OpenAI embeddings API or a compatible endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      OpenAIModel
	dimensions int
}

// NewOpenAIEmbedder creates an embedder. A positive dims asks
// text-embedding-3 models for shortened vectors; other models ignore it.
func NewOpenAIEmbedder(apiKey string, model OpenAIModel, baseURL string, dims int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if dims <= 0 || !model.shortenable() || dims > model.nativeDimensions() {
		dims = 0
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: model, dimensions: dims}
}

func (e *OpenAIEmbedder) Name() string { return string(e.model) }

func (e *OpenAIEmbedder) Dimensions() int {
	if e.dimensions > 0 {
		return e.dimensions
	}
	return e.model.nativeDimensions()
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	texts = prepare(texts)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		batch := texts[start:min(start+maxBatchSize, len(texts))]
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding %d questions with %s: %w", len(batch), e.model, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("%s returned %d embeddings for %d questions", e.model, len(resp.Data), len(batch))
		}
		// The API documents input order but tags each vector with its index.
		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("%s returned embedding index %d out of range", e.model, d.Index)
			}
			vecs[d.Index] = d.Embedding
		}
		out = append(out, vecs...)
	}
	return out, nil
}
