// Package qdrant implements datastore.Store on a Qdrant collection over
// gRPC, one collection per configured store.
package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/kailas-cloud/retrieval/internal/datastore"
	"github.com/kailas-cloud/retrieval/internal/domain"
)

const upsertTimeout = 30 * time.Second

var _ datastore.Store = (*Store)(nil)

// Config holds per-store collection parameters.
type Config struct {
	Addr           string
	CollectionName string
	Dimensions     int
}

// Store is a Qdrant-backed vector store for document chunks.
type Store struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	cfg         Config
}

// New dials Qdrant and returns a store handle.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("qdrant addr is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.DefaultVectorConfig().Dimensions
	}

	conn, err := grpc.Dial(
		cfg.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial qdrant: %w", err)
	}

	return &Store{
		conn:        conn,
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
		cfg:         cfg,
	}, nil
}

// NewWithClients creates a store over existing clients (test seam).
func NewWithClients(collections qdrant.CollectionsClient, points qdrant.PointsClient, cfg Config) *Store {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.DefaultVectorConfig().Dimensions
	}
	return &Store{collections: collections, points: points, cfg: cfg}
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Ping checks Qdrant availability via a collection existence probe.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{
		CollectionName: s.cfg.CollectionName,
	})
	if err != nil {
		return fmt.Errorf("qdrant ping: %w", err)
	}
	return nil
}

// EnsureIndex creates the collection if it does not exist yet.
func (s *Store) EnsureIndex(ctx context.Context) error {
	exists, err := s.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{
		CollectionName: s.cfg.CollectionName,
	})
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.CollectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(s.cfg.Dimensions),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// UpsertChunks replaces the stored chunks of each document and upserts
// the new points.
func (s *Store) UpsertChunks(ctx context.Context, chunks map[string][]domain.Chunk) error {
	var points []*qdrant.PointStruct
	for docID, docChunks := range chunks {
		if err := s.deleteByFilter(ctx, documentIDFilter(docID)); err != nil {
			return fmt.Errorf("replace chunks of %s: %w", docID, err)
		}
		for i := range docChunks {
			points = append(points, chunkToPoint(&docChunks[i]))
		}
	}
	if len(points) == 0 {
		return nil
	}

	upsertCtx, cancel := context.WithTimeout(ctx, upsertTimeout)
	defer cancel()

	_, err := s.points.Upsert(upsertCtx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.CollectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// Query runs one filtered search per query, preserving input order.
func (s *Store) Query(ctx context.Context, queries []domain.QueryWithEmbedding) ([]domain.QueryResult, error) {
	results := make([]domain.QueryResult, len(queries))

	for i := range queries {
		q := &queries[i]

		filter, err := buildFilter(q.Filter)
		if err != nil {
			return nil, err
		}

		topK := q.TopK
		if topK <= 0 {
			topK = domain.DefaultTopK
		}

		resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
			CollectionName: s.cfg.CollectionName,
			Vector:         q.Embedding,
			Limit:          uint64(topK),
			Filter:         filter,
			WithPayload: &qdrant.WithPayloadSelector{
				SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("search points: %w", err)
		}

		hits := make([]domain.ScoredChunk, 0, len(resp.GetResult()))
		for _, point := range resp.GetResult() {
			hits = append(hits, pointToChunk(point))
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
		if _, err := s.collections.Delete(ctx, &qdrant.DeleteCollection{
			CollectionName: s.cfg.CollectionName,
		}); err != nil {
			return false, fmt.Errorf("delete collection: %w", err)
		}
		if err := s.EnsureIndex(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	for _, id := range ids {
		if err := s.deleteByFilter(ctx, documentIDFilter(id)); err != nil {
			return false, fmt.Errorf("delete document %s: %w", id, err)
		}
	}

	if !filter.IsZero() {
		qf, err := buildFilter(filter)
		if err != nil {
			return false, err
		}
		if err := s.deleteByFilter(ctx, qf); err != nil {
			return false, fmt.Errorf("delete by filter: %w", err)
		}
	}

	return true, nil
}

func (s *Store) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	_, err := s.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// chunkToPoint builds a Qdrant point. Point IDs must be UUIDs, so the
// chunk ID is hashed into a name-based UUID and kept in the payload.
func chunkToPoint(c *domain.Chunk) *qdrant.PointStruct {
	pointID := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(c.ID)).String()

	payload := map[string]*qdrant.Value{
		payloadID:         stringValue(c.ID),
		payloadText:       stringValue(c.Text),
		payloadDocumentID: stringValue(c.Metadata.DocumentID),
	}
	setIfPresent(payload, payloadSource, string(c.Metadata.Source))
	setIfPresent(payload, payloadSourceID, c.Metadata.SourceID)
	setIfPresent(payload, payloadAuthor, c.Metadata.Author)
	setIfPresent(payload, payloadURL, c.Metadata.URL)
	if c.Metadata.CreatedAt != "" {
		payload[payloadCreatedAt] = stringValue(c.Metadata.CreatedAt)
		if ts, err := domain.ParseFilterDate(c.Metadata.CreatedAt); err == nil {
			payload[payloadCreatedTS] = doubleValue(float64(ts))
		}
	}

	return &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointID}},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: c.Embedding},
			},
		},
		Payload: payload,
	}
}

func pointToChunk(p *qdrant.ScoredPoint) domain.ScoredChunk {
	payload := p.GetPayload()
	return domain.ScoredChunk{
		ID:    payload[payloadID].GetStringValue(),
		Text:  payload[payloadText].GetStringValue(),
		Score: float64(p.GetScore()),
		Metadata: domain.ChunkMetadata{
			DocumentID: payload[payloadDocumentID].GetStringValue(),
			DocumentMetadata: domain.DocumentMetadata{
				Source:    domain.Source(payload[payloadSource].GetStringValue()),
				SourceID:  payload[payloadSourceID].GetStringValue(),
				Author:    payload[payloadAuthor].GetStringValue(),
				URL:       payload[payloadURL].GetStringValue(),
				CreatedAt: payload[payloadCreatedAt].GetStringValue(),
			},
		},
	}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func doubleValue(f float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
}

func setIfPresent(payload map[string]*qdrant.Value, key, value string) {
	if value != "" {
		payload[key] = stringValue(value)
	}
}
