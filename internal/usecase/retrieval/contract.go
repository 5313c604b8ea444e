package retrieval

import (
	"context"

	"github.com/kailas-cloud/retrieval/internal/datastore"
	"github.com/kailas-cloud/retrieval/internal/domain"
)

// Resolver maps a store name to a datastore. An empty name resolves to
// the default store.
type Resolver interface {
	Resolve(name string) (datastore.Store, error)
	DefaultName() string
}

// Embedder vectorizes a batch of texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (domain.EmbeddingResult, error)
}

// Chunker splits a document into embedding-sized chunks.
type Chunker interface {
	Split(doc domain.Document) ([]domain.Chunk, error)
}

// Extractor pulls plain text out of an uploaded file.
type Extractor interface {
	ExtractText(filename string, data []byte) (string, error)
}
