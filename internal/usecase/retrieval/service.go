package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kailas-cloud/retrieval/internal/domain"
)

// Service implements the document ingest and query pipeline: split
// documents into chunks, embed them, and hand them to the resolved
// datastore.
type Service struct {
	stores  Resolver
	embed   Embedder
	chunker Chunker
	files   Extractor
}

// New creates a retrieval service.
func New(stores Resolver, embed Embedder, chunker Chunker, files Extractor) *Service {
	return &Service{stores: stores, embed: embed, chunker: chunker, files: files}
}

// Upsert stores the documents in the named store and returns their IDs,
// one per input document in input order. Documents without an ID get a
// generated one. Existing chunks of a re-upserted document are replaced.
func (s *Service) Upsert(ctx context.Context, storeName string, docs []domain.Document) ([]string, error) {
	store, err := s.stores.Resolve(storeName)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	chunksByDoc := make(map[string][]domain.Chunk, len(docs))

	var texts []string
	var flat []*domain.Chunk

	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		ids[i] = docs[i].ID

		chunks, err := s.chunker.Split(docs[i])
		if err != nil {
			return nil, fmt.Errorf("chunk document %s: %w", docs[i].ID, err)
		}

		chunksByDoc[docs[i].ID] = chunks
		for j := range chunks {
			texts = append(texts, chunks[j].Text)
			flat = append(flat, &chunksByDoc[docs[i].ID][j])
		}
	}

	if len(texts) > 0 {
		result, err := s.embed.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(result.Embeddings) != len(flat) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks: %w",
				len(result.Embeddings), len(flat), domain.ErrEmbeddingProviderError)
		}
		for i, c := range flat {
			c.Embedding = result.Embeddings[i]
		}
	}

	if err := store.UpsertChunks(ctx, chunksByDoc); err != nil {
		return nil, fmt.Errorf("upsert chunks: %w", err)
	}

	return ids, nil
}

// UpsertFile extracts text from an uploaded file and stores it as a
// single document. The metadata source is forced to "file" and source_id
// defaults to the filename.
func (s *Service) UpsertFile(
	ctx context.Context, storeName, filename string, data []byte, meta *domain.DocumentMetadata,
) ([]string, error) {
	text, err := s.files.ExtractText(filename, data)
	if err != nil {
		return nil, err
	}

	if meta == nil {
		meta = &domain.DocumentMetadata{}
	}
	meta.Source = domain.SourceFile
	if meta.SourceID == "" {
		meta.SourceID = filename
	}

	doc := domain.Document{Text: text, Metadata: meta}
	return s.Upsert(ctx, storeName, []domain.Document{doc})
}

// Query embeds the queries and runs them against the named store. The
// response preserves query order, one result entry per input query.
func (s *Service) Query(ctx context.Context, storeName string, queries []domain.Query) ([]domain.QueryResult, error) {
	store, err := s.stores.Resolve(storeName)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = q.Query
	}

	embedded, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	if len(embedded.Embeddings) != len(queries) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d queries: %w",
			len(embedded.Embeddings), len(queries), domain.ErrEmbeddingProviderError)
	}

	withEmbeddings := make([]domain.QueryWithEmbedding, len(queries))
	for i, q := range queries {
		withEmbeddings[i] = domain.QueryWithEmbedding{
			Query:     q,
			Embedding: embedded.Embeddings[i],
		}
	}

	results, err := store.Query(ctx, withEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}
	return results, nil
}

// QueryDefault runs queries against the process-default store
// regardless of which store the caller authenticated against.
func (s *Service) QueryDefault(ctx context.Context, queries []domain.Query) ([]domain.QueryResult, error) {
	return s.Query(ctx, s.stores.DefaultName(), queries)
}

// Delete removes chunks from the named store. At least one of ids,
// filter, or deleteAll must be set; the transport layer enforces that
// precondition.
func (s *Service) Delete(
	ctx context.Context, storeName string, ids []string, filter *domain.MetadataFilter, deleteAll bool,
) (bool, error) {
	store, err := s.stores.Resolve(storeName)
	if err != nil {
		return false, err
	}

	ok, err := store.Delete(ctx, ids, filter, deleteAll)
	if err != nil {
		return false, fmt.Errorf("delete chunks: %w", err)
	}
	return ok, nil
}
