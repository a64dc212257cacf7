package vectordb

import (
	"context"
	"fmt"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/expertroute/internal/embeddings"
)

const collectionName = "questions"

// ChromemStore implements VectorStore using chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
}

var _ VectorStore = (*ChromemStore)(nil)

// NewChromemStore creates a new in-memory ChromemStore.
func NewChromemStore(embedder embeddings.Embedder) (*ChromemStore, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemStore{db: db, collection: col, embedFunc: ef}, nil
}

func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	chromDocs := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			return fmt.Errorf("document %s has no content", doc.ID)
		}
		chromDocs = append(chromDocs, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: metadataToMap(doc.Metadata),
		})
	}
	return s.collection.AddDocuments(ctx, chromDocs, 1)
}

func (s *ChromemStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	// chromem-go requires nResults <= collection size.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	limit = min(limit, count)

	results, err := s.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: mapToMetadata(r.Metadata),
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

func (s *ChromemStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.collection.Delete(ctx, nil, nil, ids...)
}

func (s *ChromemStore) Persist(path string) error {
	if err := s.db.ExportToFile(path, true, ""); err != nil {
		return fmt.Errorf("export to %s: %w", path, err)
	}
	return nil
}

func (s *ChromemStore) Load(path string) error {
	if err := s.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import from %s: %w", path, err)
	}
	// Re-acquire collection reference after import.
	col := s.db.GetCollection(collectionName, s.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found in %s", collectionName, path)
	}
	s.collection = col
	return nil
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

// metadataToMap flattens metadata for chromem, which only stores strings.
func metadataToMap(m DocumentMetadata) map[string]string {
	return map[string]string{
		"asker_id":         m.AskerID,
		"tags":             strings.Join(m.Tags, ","),
		"visibility_level": m.VisibilityLevel,
		"created_at":       m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func mapToMetadata(m map[string]string) DocumentMetadata {
	createdAt, _ := time.Parse(time.RFC3339, m["created_at"])
	var tags []string
	if m["tags"] != "" {
		tags = strings.Split(m["tags"], ",")
	}
	return DocumentMetadata{
		AskerID:         m["asker_id"],
		Tags:            tags,
		VisibilityLevel: m["visibility_level"],
		CreatedAt:       createdAt,
	}
}
