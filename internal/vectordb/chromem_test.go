package vectordb

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"
)

// mockEmbedder returns deterministic embeddings based on text content.
// Texts sharing characters land on the same positions, so similar texts
// get similar vectors.
type mockEmbedder struct {
	dims int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.deterministicVector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

func (m *mockEmbedder) deterministicVector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		vec[(int(ch)+i)%m.dims] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

var created = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *ChromemStore) {
	t.Helper()
	docs := []Document{
		{ID: "q1", Content: "How should we price a usage based API?", Metadata: DocumentMetadata{
			AskerID: "alice", Tags: []string{"pricing", "saas"}, VisibilityLevel: "secondDegree", CreatedAt: created,
		}},
		{ID: "q2", Content: "Who was your first engineering hire?", Metadata: DocumentMetadata{
			AskerID: "bob", Tags: []string{"hiring"}, VisibilityLevel: "public", CreatedAt: created,
		}},
		{ID: "q3", Content: "Term sheet red flags for a seed round", Metadata: DocumentMetadata{
			AskerID: "carol", VisibilityLevel: "firstDegree", CreatedAt: created,
		}},
	}
	if err := store.AddDocuments(context.Background(), docs); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(newMockEmbedder(64))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	seed(t, store)

	if store.Count() != 3 {
		t.Fatalf("expected 3 documents, got %d", store.Count())
	}

	results, err := store.Search(ctx, "Who was your first engineering hire?", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	top := results[0]
	if top.Document.ID != "q2" {
		t.Errorf("expected q2 first, got %s", top.Document.ID)
	}
	if top.Similarity < 0.99 {
		t.Errorf("identical text should score ~1, got %f", top.Similarity)
	}
	if results[1].Similarity > top.Similarity {
		t.Error("results should be ordered best first")
	}
	md := top.Document.Metadata
	if md.AskerID != "bob" || md.VisibilityLevel != "public" || !md.CreatedAt.Equal(created) {
		t.Errorf("metadata did not round-trip: %+v", md)
	}
	if len(md.Tags) != 1 || md.Tags[0] != "hiring" {
		t.Errorf("tags did not round-trip: %v", md.Tags)
	}
}

func TestChromemStore_SearchClampsLimit(t *testing.T) {
	store, err := NewChromemStore(newMockEmbedder(32))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	results, err := store.Search(context.Background(), "anything", 5)
	if err != nil || results != nil {
		t.Fatalf("empty store should return no results, got %v, %v", results, err)
	}

	seed(t, store)
	results, err = store.Search(context.Background(), "pricing", 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected the limit clamped to 3, got %d", len(results))
	}

	results, err = store.Search(context.Background(), "   ", 5)
	if err != nil || results != nil {
		t.Errorf("blank query should return nothing, got %v, %v", results, err)
	}
}

func TestChromemStore_RejectsEmptyContent(t *testing.T) {
	store, _ := NewChromemStore(newMockEmbedder(16))
	err := store.AddDocuments(context.Background(), []Document{{ID: "q1"}})
	if err == nil {
		t.Fatal("expected an error for a document without content")
	}
}

func TestChromemStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := NewChromemStore(newMockEmbedder(64))
	seed(t, store)

	if err := store.Delete(ctx, "q1", "q3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 document left, got %d", store.Count())
	}
	results, err := store.Search(ctx, "How should we price a usage based API?", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Document.ID != "q2" {
		t.Errorf("deleted documents still returned: %+v", results)
	}
	if err := store.Delete(ctx); err != nil {
		t.Errorf("deleting nothing should be a no-op: %v", err)
	}
}

func TestChromemStore_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	embedder := newMockEmbedder(64)
	path := filepath.Join(t.TempDir(), "similar.gob.gz")

	store, _ := NewChromemStore(embedder)
	seed(t, store)
	if err := store.Persist(path); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, _ := NewChromemStore(embedder)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Count() != 3 {
		t.Fatalf("expected 3 documents after load, got %d", loaded.Count())
	}
	results, err := loaded.Search(ctx, "Term sheet red flags for a seed round", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Document.ID != "q3" {
		t.Errorf("expected q3 after reload, got %+v", results)
	}

	if err := loaded.Load(filepath.Join(t.TempDir(), "missing.gob.gz")); err == nil {
		t.Error("loading a missing file should fail")
	}
}
