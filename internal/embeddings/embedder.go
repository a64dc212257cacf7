// Package embeddings turns question text into vectors for similar-question
// search. Every provider sees the same prepared input.
package embeddings

import (
	"context"
	"strings"
)

// maxInputRunes keeps a long question body under the input limit of the
// supported models (8191 tokens for OpenAI, 2048 for nomic-embed-text).
const maxInputRunes = 6000

// Embedder generates one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// prepare collapses whitespace and truncates each text to maxInputRunes so
// that formatting differences between otherwise equal questions do not
// move their vectors.
func prepare(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		t = strings.Join(strings.Fields(t), " ")
		if r := []rune(t); len(r) > maxInputRunes {
			t = string(r[:maxInputRunes])
		}
		out[i] = t
	}
	return out
}
