package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc adapts an Embedder to the per-document function chromem-go
// calls on add and query. Vectors whose width differs from e.Dimensions()
// are rejected, since chromem cannot compare vectors of different widths.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("%s returned %d embeddings for one question", e.Name(), len(vecs))
		}
		if want := e.Dimensions(); want > 0 && len(vecs[0]) != want {
			return nil, fmt.Errorf("%s returned %d dimensions, configured for %d", e.Name(), len(vecs[0]), want)
		}
		return vecs[0], nil
	}
}
