package embeddings

import (
	"fmt"
	"os"
)

// New creates an embedder for the given provider. dims shortens OpenAI
// text-embedding-3 vectors and declares the width of Ollama models, which do
// not report it up front.
func New(provider, model, baseURL string, dims int) (Embedder, error) {
	switch provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIEmbedder(apiKey, OpenAIModel(model), baseURL, dims), nil
	case "ollama":
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaEmbedder(model, dims, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
