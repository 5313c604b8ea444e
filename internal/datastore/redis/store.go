// Package redis implements datastore.Store on Redis 8+ FT.SEARCH
// vector indexes, one index per configured store.
package redis

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/retrieval/internal/datastore"
	"github.com/kailas-cloud/retrieval/internal/db"
	"github.com/kailas-cloud/retrieval/internal/domain"
)

// deleteBatchSize bounds how many chunk keys a single delete pass
// resolves before issuing DEL.
const deleteBatchSize = 500

var _ datastore.Store = (*Store)(nil)

// store is the consumer interface over db.Store used by this backend.
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
}

// Config holds per-store index parameters.
type Config struct {
	IndexName       string
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// Store is a Redis-backed vector store for document chunks.
type Store struct {
	db  store
	cfg Config
}

// New creates a Redis datastore over the given db facade.
func New(s store, cfg Config) *Store {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.DefaultVectorConfig().Dimensions
	}
	return &Store{db: s, cfg: cfg}
}

func (s *Store) indexName() string {
	return domain.KeyPrefix + s.cfg.IndexName + ":idx"
}

func (s *Store) keyPrefix() string {
	return domain.KeyPrefix + s.cfg.IndexName + ":chunk:"
}

func (s *Store) chunkKey(chunkID string) string {
	return s.keyPrefix() + chunkID
}

// EnsureIndex creates the FT index if it does not exist yet.
func (s *Store) EnsureIndex(ctx context.Context) error {
	def := s.indexDefinition()
	if err := s.db.CreateIndex(ctx, def); err != nil {
		if err == db.ErrIndexExists {
			return nil
		}
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return nil
}

func (s *Store) indexDefinition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     s.indexName(),
		Prefixes: []string{s.keyPrefix()},
		Fields: []db.IndexField{
			{Name: fieldDocumentID, Type: db.IndexFieldTag},
			{Name: fieldSource, Type: db.IndexFieldTag},
			{Name: fieldSourceID, Type: db.IndexFieldTag},
			{Name: fieldAuthor, Type: db.IndexFieldTag},
			{Name: fieldCreatedTS, Type: db.IndexFieldNumeric},
			{
				Name:              fieldVector,
				Alias:             "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         s.cfg.Dimensions,
				VectorDistance:    db.DistanceCosine,
				VectorM:           s.cfg.HNSWM,
				VectorEFConstruct: s.cfg.HNSWEFConstruct,
			},
		},
	}
}

// UpsertChunks replaces the stored chunks of each document and writes
// the new ones in one pipelined HSET batch per call.
func (s *Store) UpsertChunks(ctx context.Context, chunks map[string][]domain.Chunk) error {
	items := make([]db.HashSetItem, 0, len(chunks))
	for docID, docChunks := range chunks {
		if err := s.deleteByQuery(ctx, buildDocumentIDFilter(docID)); err != nil {
			return fmt.Errorf("replace chunks of %s: %w", docID, err)
		}
		for i := range docChunks {
			c := &docChunks[i]
			items = append(items, db.HashSetItem{
				Key:    s.chunkKey(c.ID),
				Fields: buildHashFields(c),
			})
		}
	}

	if err := s.db.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// Query runs one filtered KNN search per query, preserving input order.
func (s *Store) Query(ctx context.Context, queries []domain.QueryWithEmbedding) ([]domain.QueryResult, error) {
	results := make([]domain.QueryResult, len(queries))

	for i := range queries {
		q := &queries[i]

		filterStr, err := buildFilter(q.Filter)
		if err != nil {
			return nil, err
		}

		topK := q.TopK
		if topK <= 0 {
			topK = domain.DefaultTopK
		}

		sr, err := s.db.SearchKNN(ctx, &db.KNNQuery{
			IndexName:    s.indexName(),
			Filter:       filterStr,
			Vector:       q.Embedding,
			K:            topK,
			ReturnFields: returnFields,
		})
		if err != nil {
			return nil, fmt.Errorf("knn search: %w", err)
		}

		hits := make([]domain.ScoredChunk, 0, len(sr.Entries))
		for _, entry := range sr.Entries {
			hits = append(hits, parseEntry(s.keyPrefix(), entry))
		}

		results[i] = domain.QueryResult{Query: q.Query.Query, Results: hits}
	}

	return results, nil
}

// Delete removes chunks by document IDs, by filter, or everything.
func (s *Store) Delete(
	ctx context.Context, ids []string, filter *domain.MetadataFilter, deleteAll bool,
) (bool, error) {
	if deleteAll {
		if err := s.deleteAll(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	for _, id := range ids {
		if err := s.deleteByQuery(ctx, buildDocumentIDFilter(id)); err != nil {
			return false, fmt.Errorf("delete document %s: %w", id, err)
		}
	}

	if !filter.IsZero() {
		filterStr, err := buildFilter(filter)
		if err != nil {
			return false, err
		}
		if err := s.deleteByQuery(ctx, filterStr); err != nil {
			return false, fmt.Errorf("delete by filter: %w", err)
		}
	}

	return true, nil
}

// deleteAll drops the FT index, removes every chunk key by prefix scan,
// and recreates an empty index.
func (s *Store) deleteAll(ctx context.Context) error {
	if err := s.db.DropIndex(ctx, s.indexName()); err != nil && err != db.ErrIndexNotFound {
		return fmt.Errorf("drop index: %w", err)
	}

	keys, err := s.db.Scan(ctx, s.keyPrefix()+"*")
	if err != nil {
		return fmt.Errorf("scan chunk keys: %w", err)
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		if err := s.db.Del(ctx, keys[start:end]...); err != nil {
			return fmt.Errorf("delete chunk keys: %w", err)
		}
	}

	return s.EnsureIndex(ctx)
}

// deleteByQuery removes all chunk keys matched by an FT filter query,
// in bounded batches until none remain.
func (s *Store) deleteByQuery(ctx context.Context, query string) error {
	if query == "" {
		return nil
	}

	for {
		sr, err := s.db.SearchList(ctx, s.indexName(), query, 0, deleteBatchSize, []string{fieldDocumentID})
		if err != nil {
			return fmt.Errorf("find chunks: %w", err)
		}
		if len(sr.Entries) == 0 {
			return nil
		}

		keys := make([]string, len(sr.Entries))
		for i, entry := range sr.Entries {
			keys[i] = entry.Key
		}
		if err := s.db.Del(ctx, keys...); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}

		if len(sr.Entries) < deleteBatchSize {
			return nil
		}
	}
}
