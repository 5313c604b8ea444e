package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/kailas-cloud/retrieval/internal/domain"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is the character overlap between adjacent chunks.
	DefaultChunkOverlap = 100
)

// Config holds the text splitting settings.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Chunker splits document text into overlapping chunks for embedding.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// New creates a chunker with the given settings. Zero values fall back to
// the defaults.
func New(cfg Config) *Chunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}

	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// Split breaks a document into chunks. Chunk IDs are "<documentID>_<n>"
// with n counting from zero. A document with no text (or only whitespace)
// yields no chunks.
func (c *Chunker) Split(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	meta := domain.ChunkMetadata{DocumentID: doc.ID}
	if doc.Metadata != nil {
		meta.DocumentMetadata = *doc.Metadata
	}

	chunks := make([]domain.Chunk, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("%s_%d", doc.ID, len(chunks)),
			Text:     part,
			Metadata: meta,
		})
	}

	return chunks, nil
}
