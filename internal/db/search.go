package db

// KNNQuery is the input for vector similarity search. Filter is a
// pre-built FT.SEARCH filter expression; empty means match all.
type KNNQuery struct {
	IndexName    string
	Filter       string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
