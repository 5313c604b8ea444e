package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrieval/internal/datastore"
	"github.com/kailas-cloud/retrieval/internal/domain"
	healthuc "github.com/kailas-cloud/retrieval/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/retrieval/internal/usecase/retrieval"
)

type stubDatastore struct {
	upsertFn func(ctx context.Context, chunks map[string][]domain.Chunk) error
	queryFn  func(ctx context.Context, queries []domain.QueryWithEmbedding) ([]domain.QueryResult, error)
	deleteFn func(ctx context.Context, ids []string, filter *domain.MetadataFilter, deleteAll bool) (bool, error)
}

func (s *stubDatastore) UpsertChunks(ctx context.Context, chunks map[string][]domain.Chunk) error {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, chunks)
	}
	return nil
}

func (s *stubDatastore) Query(
	ctx context.Context, queries []domain.QueryWithEmbedding,
) ([]domain.QueryResult, error) {
	if s.queryFn != nil {
		return s.queryFn(ctx, queries)
	}
	results := make([]domain.QueryResult, len(queries))
	for i, q := range queries {
		results[i] = domain.QueryResult{Query: q.Query.Query, Results: []domain.ScoredChunk{}}
	}
	return results, nil
}

func (s *stubDatastore) Delete(
	ctx context.Context, ids []string, filter *domain.MetadataFilter, deleteAll bool,
) (bool, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, ids, filter, deleteAll)
	}
	return true, nil
}

type stubResolver struct {
	store    *stubDatastore
	resolved []string
}

func (s *stubResolver) Resolve(name string) (datastore.Store, error) {
	if name == "" {
		name = "main"
	}
	s.resolved = append(s.resolved, name)
	if s.store == nil {
		return nil, fmt.Errorf("store %q: %w", name, domain.ErrStoreNotFound)
	}
	return s.store, nil
}

func (s *stubResolver) DefaultName() string { return "main" }

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) (domain.EmbeddingResult, error) {
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{1, 0}
	}
	return domain.EmbeddingResult{Embeddings: embeddings}, nil
}

type stubChunker struct{}

func (stubChunker) Split(doc domain.Document) ([]domain.Chunk, error) {
	meta := domain.ChunkMetadata{DocumentID: doc.ID}
	if doc.Metadata != nil {
		meta.DocumentMetadata = *doc.Metadata
	}
	return []domain.Chunk{{ID: doc.ID + "_0", Text: doc.Text, Metadata: meta}}, nil
}

type stubTextExtractor struct{}

func (stubTextExtractor) ExtractText(filename string, data []byte) (string, error) {
	if strings.HasSuffix(filename, ".bin") {
		return "", domain.ErrUnsupportedFile
	}
	return string(data), nil
}

type stubPinger struct{ err error }

func (p *stubPinger) Ping(context.Context) error { return p.err }

type serverFixture struct {
	router   chi.Router
	resolver *stubResolver
	store    *stubDatastore
}

func newFixture(embed retrievaluc.Embedder, pingErr error) *serverFixture {
	store := &stubDatastore{}
	resolver := &stubResolver{store: store}
	if embed == nil {
		embed = &stubEmbedder{}
	}

	svc := retrievaluc.New(resolver, embed, stubChunker{}, stubTextExtractor{})
	health := healthuc.New(map[string]healthuc.Pinger{"main": &stubPinger{err: pingErr}}, nil)

	guard := NewAuthGuard("main").WithLookupEnv(testEnv(map[string]string{
		"MAIN_BEARER":    "secret",
		"ARCHIVE_BEARER": "archive-secret",
	}))

	server := NewServer(svc, health, guard, zap.NewNop())
	router := chi.NewRouter()
	server.Register(router)

	return &serverFixture{router: router, resolver: resolver, store: store}
}

func (f *serverFixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestServer_Upsert(t *testing.T) {
	f := newFixture(nil, nil)

	rec := f.do(http.MethodPost, "/upsert", "secret", map[string]any{
		"documents": []map[string]any{
			{"id": "doc1", "text": "hello"},
			{"text": "no id"},
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string][]string](t, rec)
	if len(body["ids"]) != 2 {
		t.Fatalf("expected 2 ids, got %v", body["ids"])
	}
	if body["ids"][0] != "doc1" {
		t.Errorf("first id: got %q", body["ids"][0])
	}
	if body["ids"][1] == "" {
		t.Error("second id should be generated")
	}
}

func TestServer_Upsert_EmptyDocuments(t *testing.T) {
	f := newFixture(nil, nil)

	rec := f.do(http.MethodPost, "/upsert", "secret", map[string]any{"documents": []any{}})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "documents is required" {
		t.Errorf("detail: got %q", body["detail"])
	}
}

func TestServer_Upsert_Unauthorized(t *testing.T) {
	f := newFixture(nil, nil)

	rec := f.do(http.MethodPost, "/upsert", "", map[string]any{
		"documents": []map[string]any{{"text": "hello"}},
	})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestServer_Upsert_EmbeddingProviderDown(t *testing.T) {
	f := newFixture(&stubEmbedder{err: fmt.Errorf("upstream: %w", domain.ErrEmbeddingProviderError)}, nil)

	rec := f.do(http.MethodPost, "/upsert", "secret", map[string]any{
		"documents": []map[string]any{{"text": "hello"}},
	})

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "embedding provider error" {
		t.Errorf("detail: got %q", body["detail"])
	}
}

func TestServer_Upsert_RateLimited(t *testing.T) {
	f := newFixture(&stubEmbedder{err: fmt.Errorf("upstream: %w", domain.ErrRateLimited)}, nil)

	rec := f.do(http.MethodPost, "/upsert", "secret", map[string]any{
		"documents": []map[string]any{{"text": "hello"}},
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status: got %d, want 429", rec.Code)
	}
}

func TestServer_Query(t *testing.T) {
	f := newFixture(nil, nil)
	f.store.queryFn = func(_ context.Context, queries []domain.QueryWithEmbedding) ([]domain.QueryResult, error) {
		results := make([]domain.QueryResult, len(queries))
		for i, q := range queries {
			results[i] = domain.QueryResult{
				Query: q.Query.Query,
				Results: []domain.ScoredChunk{
					{ID: "doc1_0", Text: "hit", Score: 0.9},
				},
			}
		}
		return results, nil
	}

	rec := f.do(http.MethodPost, "/query", "secret", map[string]any{
		"queries": []map[string]any{
			{"query": "first"},
			{"query": "second", "top_k": 5},
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[queryResponse](t, rec)
	if len(body.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(body.Results))
	}
	if body.Results[0].Query != "first" || body.Results[1].Query != "second" {
		t.Errorf("result order: got %q, %q", body.Results[0].Query, body.Results[1].Query)
	}
	if body.Results[0].Results[0].ID != "doc1_0" {
		t.Errorf("hit id: got %q", body.Results[0].Results[0].ID)
	}
}

func TestServer_Query_EmptyQueries(t *testing.T) {
	f := newFixture(nil, nil)

	rec := f.do(http.MethodPost, "/query", "secret", map[string]any{"queries": []any{}})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "queries is required" {
		t.Errorf("detail: got %q", body["detail"])
	}
}

func TestServer_SubQuery_UsesDefaultStore(t *testing.T) {
	f := newFixture(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/sub/query",
		strings.NewReader(`{"queries":[{"query":"q"}]}`))
	req.Header.Set("Authorization", "Bearer archive-secret")
	req.Header.Set(StoreNameHeader, "archive")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if len(f.resolver.resolved) != 1 || f.resolver.resolved[0] != "main" {
		t.Errorf("resolved stores: got %v, want [main]", f.resolver.resolved)
	}
}

func TestServer_Delete(t *testing.T) {
	f := newFixture(nil, nil)

	var gotIDs []string
	f.store.deleteFn = func(_ context.Context, ids []string, _ *domain.MetadataFilter, _ bool) (bool, error) {
		gotIDs = ids
		return true, nil
	}

	rec := f.do(http.MethodDelete, "/delete", "secret", map[string]any{"ids": []string{"doc1"}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[deleteResponse](t, rec)
	if !body.Success {
		t.Error("expected success")
	}
	if len(gotIDs) != 1 || gotIDs[0] != "doc1" {
		t.Errorf("deleted ids: got %v", gotIDs)
	}
}

func TestServer_Delete_MissingSelector(t *testing.T) {
	f := newFixture(nil, nil)

	rec := f.do(http.MethodDelete, "/delete", "secret", map[string]any{})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "One of ids, filter, or delete_all is required" {
		t.Errorf("detail: got %q", body["detail"])
	}
}

func TestServer_Delete_All(t *testing.T) {
	f := newFixture(nil, nil)

	var gotAll bool
	f.store.deleteFn = func(_ context.Context, _ []string, _ *domain.MetadataFilter, deleteAll bool) (bool, error) {
		gotAll = deleteAll
		return true, nil
	}

	rec := f.do(http.MethodDelete, "/delete", "secret", map[string]any{"delete_all": true})

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !gotAll {
		t.Error("delete_all not forwarded")
	}
}

func TestServer_UpsertFile(t *testing.T) {
	f := newFixture(nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("file contents")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.WriteField("metadata", `{"author":"alice"}`); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	var stored map[string][]domain.Chunk
	f.store.upsertFn = func(_ context.Context, chunks map[string][]domain.Chunk) error {
		stored = chunks
		return nil
	}

	req := httptest.NewRequest(http.MethodPost, "/upsert-file", &buf)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string][]string](t, rec)
	if len(body["ids"]) != 1 {
		t.Fatalf("expected 1 id, got %v", body["ids"])
	}

	chunks := stored[body["ids"][0]]
	if len(chunks) == 0 {
		t.Fatal("no chunks stored")
	}
	meta := chunks[0].Metadata
	if meta.Source != domain.SourceFile {
		t.Errorf("source: got %q, want file", meta.Source)
	}
	if meta.SourceID != "notes.txt" {
		t.Errorf("source_id: got %q", meta.SourceID)
	}
	if meta.Author != "alice" {
		t.Errorf("author: got %q", meta.Author)
	}
}

func TestServer_UpsertFile_MissingFile(t *testing.T) {
	f := newFixture(nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("metadata", `{}`)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upsert-file", &buf)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "file is required" {
		t.Errorf("detail: got %q", body["detail"])
	}
}

func TestServer_UpsertFile_UnsupportedType(t *testing.T) {
	f := newFixture(nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "payload.bin")
	_, _ = part.Write([]byte{0x00, 0x01})
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upsert-file", &buf)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "unsupported file type" {
		t.Errorf("detail: got %q", body["detail"])
	}
}

func TestServer_Health_OK(t *testing.T) {
	f := newFixture(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeBody[healthResponse](t, rec)
	if body.Status != "ok" {
		t.Errorf("status field: got %q", body.Status)
	}
	if body.Checks["store:main"] != healthuc.CheckOK {
		t.Errorf("store check: got %q", body.Checks["store:main"])
	}
}

func TestServer_Health_Degraded(t *testing.T) {
	f := newFixture(nil, fmt.Errorf("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rec.Code)
	}
	body := decodeBody[healthResponse](t, rec)
	if body.Status != "degraded" {
		t.Errorf("status field: got %q", body.Status)
	}
}

func TestServer_StatusErrorPassthrough(t *testing.T) {
	f := newFixture(&stubEmbedder{err: domain.NewStatusError(http.StatusForbidden, "quota exceeded")}, nil)

	rec := f.do(http.MethodPost, "/query", "secret", map[string]any{
		"queries": []map[string]any{{"query": "q"}},
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "quota exceeded" {
		t.Errorf("detail: got %q", body["detail"])
	}
}

func TestServer_UnknownErrorIs500(t *testing.T) {
	f := newFixture(&stubEmbedder{err: fmt.Errorf("boom")}, nil)

	rec := f.do(http.MethodPost, "/query", "secret", map[string]any{
		"queries": []map[string]any{{"query": "q"}},
	})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "Internal Service Error" {
		t.Errorf("detail: got %q", body["detail"])
	}
}
