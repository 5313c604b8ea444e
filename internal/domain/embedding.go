package domain

import "context"

// EmbeddingResult holds the vectors for a batch of input texts, in
// input order, plus the provider-reported token usage.
type EmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Embedder produces embeddings for a batch of texts.
// Implementations must return exactly one vector per input text,
// in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (EmbeddingResult, error)
}
