package llm

import (
	"fmt"
	"os"
)

const defaultOllamaHost = "http://localhost:11434"

// hosted lists the providers that authenticate with an API key, keyed by
// provider name.
var hosted = map[string]struct {
	keyEnv string
	build  func(apiKey, model, baseURL string) Provider
}{
	"anthropic":  {"ANTHROPIC_API_KEY", func(k, m, u string) Provider { return NewAnthropicProvider(k, m, u) }},
	"openai":     {"OPENAI_API_KEY", func(k, m, u string) Provider { return NewOpenAIProvider(k, m, u) }},
	"openrouter": {"OPENROUTER_API_KEY", func(k, m, u string) Provider { return NewOpenRouterProvider(k, m, u) }},
}

// NewProvider builds the classification or synthesis backend named by
// providerType. Hosted providers read their key from the environment; Ollama
// resolves its host from baseURL, then OLLAMA_HOST, then the local default.
func NewProvider(providerType, model, baseURL string) (Provider, error) {
	if providerType == "ollama" {
		host := firstNonEmpty(baseURL, os.Getenv("OLLAMA_HOST"), defaultOllamaHost)
		return NewOllamaProvider(host, model), nil
	}
	h, ok := hosted[providerType]
	if !ok {
		return nil, fmt.Errorf("unsupported provider type: %q", providerType)
	}
	apiKey := os.Getenv(h.keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s provider needs %s to be set", providerType, h.keyEnv)
	}
	return h.build(apiKey, model, baseURL), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
