package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedBatches(t *testing.T) {
	var got ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 0}, {0, 1}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 2, srv.URL)
	vecs, err := e.Embed(context.Background(), []string{"seed round", "hiring"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "nomic-embed-text", got.Model)
	assert.Equal(t, []string{"seed round", "hiring"}, got.Input)
	assert.Equal(t, "ollama/nomic-embed-text", e.Name())
}

func TestOllamaEmbedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder("missing", 2, srv.URL).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{})
	}))
	defer short.Close()
	_, err = NewOllamaEmbedder("m", 2, short.URL).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
}

func TestOpenAIEmbedAgainstCompatibleEndpoint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		// Returned out of order on purpose.
		w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":1,"embedding":[0,1]},
			        {"object":"embedding","index":0,"embedding":[0.6,0.8]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("sk-test", ModelTextEmbedding3Small, srv.URL+"/v1", 256)
	vecs, err := e.Embed(context.Background(), []string{"usage  based\n pricing", "seat pricing"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, vecs[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1}, vecs[1], 1e-6)
	assert.Equal(t, 256, e.Dimensions())
	assert.EqualValues(t, 256, got["dimensions"])
	assert.Equal(t, []any{"usage based pricing", "seat pricing"}, got["input"])
}

func TestOpenAIDimensions(t *testing.T) {
	assert.Equal(t, 1536, NewOpenAIEmbedder("k", ModelTextEmbedding3Small, "", 0).Dimensions())
	assert.Equal(t, 3072, NewOpenAIEmbedder("k", ModelTextEmbedding3Large, "", 0).Dimensions())
	assert.Equal(t, 1536, NewOpenAIEmbedder("k", ModelTextEmbedding3Small, "", 4096).Dimensions(), "cannot widen")
	assert.Equal(t, 1536, NewOpenAIEmbedder("k", "text-embedding-ada-002", "", 512).Dimensions(), "ada cannot shorten")
}

func TestPrepare(t *testing.T) {
	long := strings.Repeat("é", maxInputRunes+10)
	got := prepare([]string{"  How do we\n\nprice   it? ", long})
	assert.Equal(t, "How do we price it?", got[0])
	assert.Len(t, []rune(got[1]), maxInputRunes)
}

func TestNew(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New("openai", "text-embedding-3-small", "", 0)
	assert.Error(t, err)

	e, err := New("ollama", "nomic-embed-text", "http://ollama:11434", 768)
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimensions())

	_, err = New("anthropic", "x", "", 0)
	assert.Error(t, err)
}

type fixedEmbedder struct{ out [][]float32 }

func (f fixedEmbedder) Embed(context.Context, []string) ([][]float32, error) { return f.out, nil }
func (f fixedEmbedder) Dimensions() int                                      { return 2 }
func (f fixedEmbedder) Name() string                                         { return "fixed" }

func TestToChromemFunc(t *testing.T) {
	v, err := ToChromemFunc(fixedEmbedder{out: [][]float32{{1, 0}}})(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)

	_, err = ToChromemFunc(fixedEmbedder{})(context.Background(), "x")
	assert.Error(t, err)

	_, err = ToChromemFunc(fixedEmbedder{out: [][]float32{{1, 0, 0}}})(context.Background(), "x")
	assert.ErrorContains(t, err, "configured for 2")
}
