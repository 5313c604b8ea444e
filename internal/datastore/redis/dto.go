package redis

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/retrieval/internal/db"
	"github.com/kailas-cloud/retrieval/internal/domain"
)

// Hash field names. Double-underscore fields are service-owned; the
// rest mirror chunk metadata keys.
const (
	fieldText       = "__text"
	fieldVector     = "__vector"
	fieldDocumentID = "document_id"
	fieldSource     = "source"
	fieldSourceID   = "source_id"
	fieldAuthor     = "author"
	fieldURL        = "url"
	fieldCreatedAt  = "created_at"
	fieldCreatedTS  = "created_ts"
)

// returnFields lists the hash fields requested from FT.SEARCH for
// query hits. __vector_score arrives alongside and is parsed out by
// the db layer.
var returnFields = []string{
	fieldText,
	fieldDocumentID,
	fieldSource,
	fieldSourceID,
	fieldAuthor,
	fieldURL,
	fieldCreatedAt,
	"__vector_score",
}

// buildHashFields converts a chunk into a flat map[string]string for
// HSET. Empty metadata values are omitted so TAG filters never match
// blank tags.
func buildHashFields(c *domain.Chunk) map[string]string {
	m := map[string]string{
		fieldText:       c.Text,
		fieldVector:     vectorToBytes(c.Embedding),
		fieldDocumentID: c.Metadata.DocumentID,
	}
	if c.Metadata.Source != "" {
		m[fieldSource] = string(c.Metadata.Source)
	}
	if c.Metadata.SourceID != "" {
		m[fieldSourceID] = c.Metadata.SourceID
	}
	if c.Metadata.Author != "" {
		m[fieldAuthor] = c.Metadata.Author
	}
	if c.Metadata.URL != "" {
		m[fieldURL] = c.Metadata.URL
	}
	if c.Metadata.CreatedAt != "" {
		m[fieldCreatedAt] = c.Metadata.CreatedAt
		if ts, err := domain.ParseFilterDate(c.Metadata.CreatedAt); err == nil {
			m[fieldCreatedTS] = strconv.FormatInt(ts, 10)
		}
	}
	return m
}

// parseEntry converts a search hit back into a scored chunk.
func parseEntry(keyPrefix string, entry db.SearchEntry) domain.ScoredChunk {
	f := entry.Fields
	return domain.ScoredChunk{
		ID:    strings.TrimPrefix(entry.Key, keyPrefix),
		Text:  f[fieldText],
		Score: entry.Score,
		Metadata: domain.ChunkMetadata{
			DocumentID: f[fieldDocumentID],
			DocumentMetadata: domain.DocumentMetadata{
				Source:    domain.Source(f[fieldSource]),
				SourceID:  f[fieldSourceID],
				Author:    f[fieldAuthor],
				URL:       f[fieldURL],
				CreatedAt: f[fieldCreatedAt],
			},
		},
	}
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per
// float, little-endian), the layout FT.SEARCH expects for FLOAT32.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
