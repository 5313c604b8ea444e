package qdrant

import (
	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/kailas-cloud/retrieval/internal/domain"
)

// Payload keys for stored chunk points.
const (
	payloadID         = "id"
	payloadText       = "text"
	payloadDocumentID = "document_id"
	payloadSource     = "source"
	payloadSourceID   = "source_id"
	payloadAuthor     = "author"
	payloadURL        = "url"
	payloadCreatedAt  = "created_at"
	payloadCreatedTS  = "created_ts"
)

// buildFilter translates a metadata filter into a Qdrant must-filter.
// A nil/empty filter yields nil (match all).
func buildFilter(f *domain.MetadataFilter) (*qdrant.Filter, error) {
	if f.IsZero() {
		return nil, nil
	}

	var must []*qdrant.Condition

	if f.DocumentID != "" {
		must = append(must, matchCondition(payloadDocumentID, f.DocumentID))
	}
	if f.Source != "" {
		must = append(must, matchCondition(payloadSource, string(f.Source)))
	}
	if f.SourceID != "" {
		must = append(must, matchCondition(payloadSourceID, f.SourceID))
	}
	if f.Author != "" {
		must = append(must, matchCondition(payloadAuthor, f.Author))
	}

	if f.StartDate != "" || f.EndDate != "" {
		cond, err := dateRangeCondition(f.StartDate, f.EndDate)
		if err != nil {
			return nil, err
		}
		must = append(must, cond)
	}

	return &qdrant.Filter{Must: must}, nil
}

func documentIDFilter(id string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{matchCondition(payloadDocumentID, id)}}
}

func matchCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func dateRangeCondition(start, end string) (*qdrant.Condition, error) {
	r := &qdrant.Range{}

	if start != "" {
		ts, err := domain.ParseFilterDate(start)
		if err != nil {
			return nil, err
		}
		gte := float64(ts)
		r.Gte = &gte
	}
	if end != "" {
		ts, err := domain.ParseFilterDate(end)
		if err != nil {
			return nil, err
		}
		lte := float64(ts)
		r.Lte = &lte
	}

	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   payloadCreatedTS,
				Range: r,
			},
		},
	}, nil
}
