package vectorindex

import "context"

/*
Index is the hybrid-search surface the pipeline needs from the vector
database. One HybridSearch call is one (keyword, alpha) probe; the caller
owns fan-out, merging, and URL dedupe.
*/
type Index interface {
	// Ready reports whether the index is reachable and serving.
	Ready(ctx context.Context) error
	HybridSearch(ctx context.Context, q HybridQuery) ([]Candidate, error)
}

// HybridQuery is one dense+lexical probe against the creator collection.
type HybridQuery struct {
	Query  string
	Vector []float32
	// Alpha mixes dense vs lexical: 1 is pure vector, 0 is pure BM25.
	Alpha float64
	Limit int

	// Optional structured filters.
	Platform     string
	MinFollowers int
	MaxFollowers int
}

// Candidate is one scored row from the index.
type Candidate struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Distance    float64 `json:"distance"`
	ProfileURL  string  `json:"profile_url"`
	Platform    string  `json:"platform"`
	DisplayName string  `json:"display_name"`
	Biography   string  `json:"biography"`
	Followers   int64   `json:"followers"`
}
