package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrieval/internal/domain"
	healthuc "github.com/kailas-cloud/retrieval/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/retrieval/internal/usecase/retrieval"
)

// maxUploadBytes bounds in-memory multipart parsing for file upserts.
const maxUploadBytes = 32 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes the retrieval API over HTTP.
type Server struct {
	retrieval     *retrievaluc.Service
	health        *healthuc.Service
	guard         *AuthGuard
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval *retrievaluc.Service,
	health *healthuc.Service,
	guard *AuthGuard,
	logger *zap.Logger,
) *Server {
	s := &Server{
		retrieval: retrieval,
		health:    health,
		guard:     guard,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		statusErrorHandler,
		sentinelHandler(domain.ErrStoreNotFound, http.StatusBadRequest),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest),
		sentinelHandler(domain.ErrUnsupportedFile, http.StatusBadRequest),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway),
	}
	return s
}

// Register mounts the API routes. The document endpoints sit behind the
// per-store auth guard; health and metrics do not.
func (s *Server) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.guard.Middleware)
		r.Post("/upsert", s.Upsert)
		r.Post("/upsert-file", s.UpsertFile)
		r.Post("/query", s.Query)
		r.Post("/sub/query", s.SubQuery)
		r.Delete("/delete", s.Delete)
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Upsert handles POST /upsert.
func (s *Server) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents is required")
		return
	}

	ids, err := s.retrieval.Upsert(r.Context(), StoreNameFromContext(r.Context()), req.Documents)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, upsertResponse{IDs: ids})
}

// UpsertFile handles POST /upsert-file (multipart form with a "file"
// part and an optional "metadata" JSON field).
func (s *Server) UpsertFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file: "+err.Error())
		return
	}

	var meta *domain.DocumentMetadata
	if raw := r.FormValue("metadata"); raw != "" {
		meta = &domain.DocumentMetadata{}
		if err := json.Unmarshal([]byte(raw), meta); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid metadata: "+err.Error())
			return
		}
	}

	ids, err := s.retrieval.UpsertFile(r.Context(), StoreNameFromContext(r.Context()), header.Filename, data, meta)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, upsertResponse{IDs: ids})
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	queries, ok := s.decodeQueries(w, r)
	if !ok {
		return
	}

	results, err := s.retrieval.Query(r.Context(), StoreNameFromContext(r.Context()), queries)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Results: results})
}

// SubQuery handles POST /sub/query. It authenticates against the store
// named in the request but always queries the default store.
func (s *Server) SubQuery(w http.ResponseWriter, r *http.Request) {
	queries, ok := s.decodeQueries(w, r)
	if !ok {
		return
	}

	results, err := s.retrieval.QueryDefault(r.Context(), queries)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Results: results})
}

func (s *Server) decodeQueries(w http.ResponseWriter, r *http.Request) ([]domain.Query, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries is required")
		return nil, false
	}
	return req.Queries, true
}

// Delete handles DELETE /delete.
func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 && req.Filter.IsZero() && !req.DeleteAll {
		writeError(w, http.StatusBadRequest, "One of ids, filter, or delete_all is required")
		return
	}

	ok, err := s.retrieval.Delete(r.Context(), StoreNameFromContext(r.Context()), req.IDs, req.Filter, req.DeleteAll)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Success: ok})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the error body shape clients expect: {"detail": ...}.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// safeDomainMessage returns a sentinel error message for the client
// without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrStoreNotFound,
		domain.ErrInvalidRequest,
		domain.ErrUnsupportedFile,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "Internal Service Error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, safeDomainMessage(err))
		return true
	}
}

// statusErrorHandler handles errors that carry their own HTTP status and detail.
func statusErrorHandler(w http.ResponseWriter, err error) bool {
	var se *domain.StatusError
	if !errors.As(err, &se) {
		return false
	}
	writeError(w, se.Status, se.Detail)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("domain error",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal Service Error")
}
