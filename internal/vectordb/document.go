package vectordb

import "time"

// Document is the searchable text of one question. ID is the question id.
type Document struct {
	ID       string
	Content  string
	Metadata DocumentMetadata
}

// DocumentMetadata holds what callers need to filter results without a
// database round trip.
type DocumentMetadata struct {
	AskerID         string
	Tags            []string
	VisibilityLevel string
	CreatedAt       time.Time
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document   Document
	Similarity float32
}
