// Package datastore defines the vector store contract the retrieval
// endpoints dispatch to, and the registry of named store handles.
package datastore

import (
	"context"

	"github.com/kailas-cloud/retrieval/internal/domain"
)

// Store is a backing vector index. Chunking and embedding happen above
// this interface; implementations only move vectors and payloads.
type Store interface {
	// UpsertChunks writes the chunks of each document, replacing any
	// chunks previously stored for the same document IDs.
	UpsertChunks(ctx context.Context, chunks map[string][]domain.Chunk) error

	// Query runs one KNN search per embedded query and returns one
	// result set per query, in input order.
	Query(ctx context.Context, queries []domain.QueryWithEmbedding) ([]domain.QueryResult, error)

	// Delete removes chunks by document IDs, by metadata filter, or
	// everything when deleteAll is set.
	Delete(ctx context.Context, ids []string, filter *domain.MetadataFilter, deleteAll bool) (bool, error)
}
