package embcache

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrieval/internal/db"
	"github.com/kailas-cloud/retrieval/internal/domain"
)

type mapStore struct {
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

type countingEmbedder struct {
	calls   int
	batches [][]string
	err     error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) (domain.EmbeddingResult, error) {
	e.calls++
	e.batches = append(e.batches, texts)
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{float32(len(texts[i])), 1}
	}
	return domain.EmbeddingResult{Embeddings: embeddings, TotalTokens: len(texts) * 3}, nil
}

func TestEmbed_MissThenHit(t *testing.T) {
	store := newMapStore()
	inner := &countingEmbedder{}
	c := New(inner, store, nil, zap.NewNop())

	first, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls after miss: got %d", inner.calls)
	}
	if store.sets != 2 {
		t.Errorf("cache writes: got %d, want 2", store.sets)
	}

	second, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("fully cached batch should not call inner embedder, calls=%d", inner.calls)
	}
	if !reflect.DeepEqual(first.Embeddings, second.Embeddings) {
		t.Error("cached embeddings differ from original")
	}
	if second.TotalTokens != 0 {
		t.Errorf("cached batch should report zero tokens, got %d", second.TotalTokens)
	}
}

func TestEmbed_PartialHitForwardsOnlyMissing(t *testing.T) {
	store := newMapStore()
	inner := &countingEmbedder{}
	c := New(inner, store, nil, zap.NewNop())

	if _, err := c.Embed(context.Background(), []string{"alpha"}); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	result, err := c.Embed(context.Background(), []string{"alpha", "gamma", "delta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(inner.batches) != 2 {
		t.Fatalf("inner batches: got %d", len(inner.batches))
	}
	if !reflect.DeepEqual(inner.batches[1], []string{"gamma", "delta"}) {
		t.Errorf("forwarded texts: got %v", inner.batches[1])
	}
	if len(result.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(result.Embeddings))
	}
	for i, v := range result.Embeddings {
		if len(v) == 0 {
			t.Errorf("embedding %d is empty", i)
		}
	}
}

func TestEmbed_CacheGetErrorFallsThrough(t *testing.T) {
	store := newMapStore()
	store.getErr = errors.New("connection reset")
	inner := &countingEmbedder{}
	c := New(inner, store, nil, zap.NewNop())

	result, err := c.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls: got %d", inner.calls)
	}
	if len(result.Embeddings) != 1 {
		t.Errorf("embeddings: got %d", len(result.Embeddings))
	}
}

func TestEmbed_CacheSetErrorIsNonFatal(t *testing.T) {
	store := newMapStore()
	store.setErr = errors.New("read only replica")
	inner := &countingEmbedder{}
	c := New(inner, store, nil, zap.NewNop())

	_, err := c.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	store := newMapStore()
	inner := &countingEmbedder{err: domain.ErrRateLimited}
	c := New(inner, store, nil, zap.NewNop())

	_, err := c.Embed(context.Background(), []string{"alpha"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestEmbed_ShortInnerResponse(t *testing.T) {
	store := newMapStore()
	inner := &shortEmbedder{}
	c := New(inner, store, nil, zap.NewNop())

	_, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(_ context.Context, texts []string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embeddings: make([][]float32, len(texts)-1)}, nil
}

func TestEmbed_CorruptCacheEntryIsMiss(t *testing.T) {
	store := newMapStore()
	inner := &countingEmbedder{}
	c := New(inner, store, nil, zap.NewNop())

	// 3 bytes cannot decode as float32s.
	store.data[c.cacheKey("alpha")] = []byte{1, 2, 3}

	result, err := c.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("corrupt entry should fall through to inner, calls=%d", inner.calls)
	}
	if len(result.Embeddings[0]) == 0 {
		t.Error("embedding missing")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75}
	out, err := bytesToVector(vectorToCacheBytes(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip: got %v, want %v", out, in)
	}
}
