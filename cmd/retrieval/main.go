package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrieval/internal/config"
	"github.com/kailas-cloud/retrieval/internal/datastore"
	dsQdrant "github.com/kailas-cloud/retrieval/internal/datastore/qdrant"
	dsRedis "github.com/kailas-cloud/retrieval/internal/datastore/redis"
	dbRedis "github.com/kailas-cloud/retrieval/internal/db/redis"
	"github.com/kailas-cloud/retrieval/internal/domain"
	logpkg "github.com/kailas-cloud/retrieval/internal/logger"
	"github.com/kailas-cloud/retrieval/internal/metrics"
	"github.com/kailas-cloud/retrieval/internal/repository/embcache"
	"github.com/kailas-cloud/retrieval/internal/services/chunker"
	"github.com/kailas-cloud/retrieval/internal/services/file"
	chiTransport "github.com/kailas-cloud/retrieval/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/retrieval/internal/transport/openai"
	healthuc "github.com/kailas-cloud/retrieval/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/retrieval/internal/usecase/retrieval"
	"github.com/kailas-cloud/retrieval/internal/version"
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retrieval API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("default_store", cfg.Stores.Default),
	)

	if os.Getenv("BEARER_TOKEN") == "" {
		logger.Fatal("BEARER_TOKEN environment variable is required")
	}
	if os.Getenv("PINECONE_INDEX") == "" {
		logger.Fatal("PINECONE_INDEX environment variable is required")
	}

	ctx := context.Background()

	// Register embedding metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()

	// Build datastore backends and the registry.
	registry := datastore.NewRegistry(cfg.Stores.Default)
	healthStores := make(map[string]healthuc.Pinger, len(cfg.Stores.Backends))

	// The first redis backend's connection doubles as the embedding cache
	// store.
	var cacheStore *dbRedis.Store

	readiness := time.Duration(cfg.Stores.ReadinessTimeout) * time.Second

	for _, sc := range cfg.Stores.Backends {
		switch sc.Driver {
		case "redis":
			store, err := dbRedis.NewStore(dbRedis.Config{
				Addrs:    sc.Addrs,
				Password: sc.Password,
			})
			if err != nil {
				logger.Fatal("Failed to connect to redis store",
					zap.String("store", sc.Name), zap.Error(err))
			}
			defer store.Close()

			if err := store.WaitForReady(ctx, readiness); err != nil {
				logger.Fatal("Redis store not ready",
					zap.String("store", sc.Name), zap.Error(err))
			}

			ds := dsRedis.New(store, dsRedis.Config{
				IndexName:       sc.Name,
				Dimensions:      cfg.Embedding.Dimensions,
				HNSWM:           cfg.Index.HNSWM,
				HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
			})
			if err := ds.EnsureIndex(ctx); err != nil {
				logger.Fatal("Failed to ensure redis index",
					zap.String("store", sc.Name), zap.Error(err))
			}

			mustRegister(logger, registry, sc.Name, ds)
			healthStores[sc.Name] = store
			if cacheStore == nil {
				cacheStore = store
			}

		case "qdrant":
			collection := sc.Collection
			if collection == "" {
				collection = sc.Name
			}
			ds, err := dsQdrant.New(dsQdrant.Config{
				Addr:           sc.Addr,
				CollectionName: collection,
				Dimensions:     cfg.Embedding.Dimensions,
			})
			if err != nil {
				logger.Fatal("Failed to connect to qdrant store",
					zap.String("store", sc.Name), zap.Error(err))
			}
			defer func() { _ = ds.Close() }()

			if err := ds.EnsureIndex(ctx); err != nil {
				logger.Fatal("Failed to ensure qdrant collection",
					zap.String("store", sc.Name), zap.Error(err))
			}

			mustRegister(logger, registry, sc.Name, ds)
			healthStores[sc.Name] = ds

		default:
			logger.Fatal("Unknown store driver",
				zap.String("store", sc.Name), zap.String("driver", sc.Driver))
		}
	}
	logger.Info("Stores ready", zap.Strings("stores", registry.Names()))

	// Embedder chain: OpenAI -> cached
	baseEmbedder, embedder := buildEmbedder(cfg, cacheStore, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	split := chunker.New(chunker.Config{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	})
	extractor := file.NewExtractor()

	retrievalSvc := retrievaluc.New(registry, embedder, split, extractor)
	healthSvc := healthuc.New(healthStores, baseEmbedder)

	guard := chiTransport.NewAuthGuard(cfg.Stores.Default)
	server := chiTransport.NewServer(retrievalSvc, healthSvc, guard, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)
	r.Handle("/.well-known/*", http.StripPrefix("/.well-known/",
		http.FileServer(http.Dir(".well-known"))))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func mustRegister(logger *zap.Logger, registry *datastore.Registry, name string, s datastore.Store) {
	if err := registry.Register(name, s); err != nil {
		logger.Fatal("Failed to register store", zap.String("store", name), zap.Error(err))
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached. The
// base embedder is returned separately so health checks bypass the cache.
func buildEmbedder(cfg config.Config, cacheStore *dbRedis.Store, logger *zap.Logger) (*openaiEmb.Embedder, domain.Embedder) {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Logger:     logger,
	})

	if cacheStore == nil {
		return base, base
	}
	return base, embcache.New(base, cacheStore, metrics.EmbeddingCacheTotal, logger)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"detail": "Internal Service Error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
