package chi

import (
	"github.com/kailas-cloud/retrieval/internal/domain"
	healthuc "github.com/kailas-cloud/retrieval/internal/usecase/health"
)

type upsertRequest struct {
	Documents []domain.Document `json:"documents"`
}

type upsertResponse struct {
	IDs []string `json:"ids"`
}

type queryRequest struct {
	Queries []domain.Query `json:"queries"`
}

type queryResponse struct {
	Results []domain.QueryResult `json:"results"`
}

type deleteRequest struct {
	IDs       []string               `json:"ids,omitempty"`
	Filter    *domain.MetadataFilter `json:"filter,omitempty"`
	DeleteAll bool                   `json:"delete_all,omitempty"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}
