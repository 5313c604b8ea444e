package retrieval

import "github.com/kailas-cloud/retrieval/internal/domain"

// Domain types re-exported for SDK callers.
type (
	// Document is a unit of content to upsert.
	Document = domain.Document
	// DocumentMetadata describes a document.
	DocumentMetadata = domain.DocumentMetadata
	// Query is a natural-language query with an optional filter.
	Query = domain.Query
	// QueryResult holds the hits for a single query.
	QueryResult = domain.QueryResult
	// ScoredChunk is a chunk hit with its similarity score.
	ScoredChunk = domain.ScoredChunk
	// MetadataFilter narrows queries and deletes to matching chunks.
	MetadataFilter = domain.MetadataFilter
	// Source identifies where a document originated.
	Source = domain.Source
)

// Source values.
const (
	SourceEmail = domain.SourceEmail
	SourceFile  = domain.SourceFile
	SourceChat  = domain.SourceChat
)
