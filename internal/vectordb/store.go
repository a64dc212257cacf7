// Package vectordb indexes question text by embedding so similar questions
// can be found.
package vectordb

import "context"

// VectorStore stores and searches documents by embedding.
type VectorStore interface {
	// AddDocuments adds or replaces documents.
	AddDocuments(ctx context.Context, docs []Document) error

	// Search returns up to limit documents closest to query, best first.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Delete removes documents by id.
	Delete(ctx context.Context, ids ...string) error

	// Persist writes the index to a file.
	Persist(path string) error

	// Load replaces the index with the contents of a file.
	Load(path string) error

	// Count returns the total number of documents in the store.
	Count() int
}
