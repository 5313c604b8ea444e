package domain

import (
	"fmt"
	"time"
)

// DefaultTopK is the number of chunks returned per query when the
// caller does not specify top_k.
const DefaultTopK = 3

// MetadataFilter narrows queries and deletes to matching chunks.
// StartDate/EndDate bound the document created_at timestamp and accept
// RFC 3339 or plain YYYY-MM-DD values.
type MetadataFilter struct {
	DocumentID string `json:"document_id,omitempty"`
	Source     Source `json:"source,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
	Author     string `json:"author,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
}

// IsZero reports whether the filter constrains nothing.
func (f *MetadataFilter) IsZero() bool {
	return f == nil || *f == MetadataFilter{}
}

// Query is a natural-language query with an optional metadata filter.
type Query struct {
	Query  string          `json:"query"`
	Filter *MetadataFilter `json:"filter,omitempty"`
	TopK   int             `json:"top_k,omitempty"`
}

// QueryWithEmbedding pairs a query with its embedded vector, ready for
// the vector index.
type QueryWithEmbedding struct {
	Query
	Embedding []float32 `json:"embedding"`
}

// ScoredChunk is a chunk hit with its similarity score.
type ScoredChunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}

// QueryResult holds the hits for a single query, echoing the query text.
type QueryResult struct {
	Query   string        `json:"query"`
	Results []ScoredChunk `json:"results"`
}

// ParseFilterDate parses a filter date bound as RFC 3339, falling back
// to a bare date, and returns the Unix timestamp.
func ParseFilterDate(s string) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", s, ErrInvalidRequest)
	}
	return t.Unix(), nil
}
