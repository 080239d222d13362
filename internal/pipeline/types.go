package pipeline

import (
	"time"

	"github.com/scoutline/scoutline-backend/internal/external/vectorindex"
)

// Tunables of the enrichment/scoring subsystem.
const (
	batchSize          = 20
	maxInFlightBatches = 5
	pollInterval       = 10 * time.Second
	batchTimeout       = 300 * time.Second
	stageTimeout       = 3600 * time.Second
	scoringConcurrency = 100
	maxSearchInFlight  = 24
	inactiveWindow     = 60 * 24 * time.Hour
	maxPostsPerProfile = 8
	goodFitThreshold   = 100
	costPerCallUSD     = 0.0015
)

// hybridAlphas are the two dense/lexical mixes each keyword is probed
// with; the cartesian product {keyword x alpha} defines the search set.
var hybridAlphas = []float64{0.5, 0.75}

// Candidate is one vector-search hit carried through the pipeline with
// its canonical URL attached.
type Candidate struct {
	vectorindex.Candidate
	NormalizedURL string `json:"normalized_url"`
}

// ScoredProfile is one enriched and scored creator, the unit of the
// batch/progressive/final/remaining artifacts.
type ScoredProfile struct {
	Platform    string `json:"platform"`
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Followers   int64  `json:"followers"`
	Biography   string `json:"biography"`
	ProfileURL  string `json:"profile_url"`
	// Fit is the 0-100 mapping of the model's 1-10 score; 100 is the
	// good-fit threshold for adaptive stop.
	Fit       int    `json:"fit"`
	Rationale string `json:"rationale"`
	Summary   string `json:"summary"`

	Posts []ProfilePost `json:"posts,omitempty"`
}

// ProfilePost is one recent post in the normalized profile shape.
type ProfilePost struct {
	Caption  string `json:"caption,omitempty"`
	Likes    int64  `json:"likes,omitempty"`
	Comments int64  `json:"comments,omitempty"`
	// PostedAgo is a relative-time rendering of the post date ("3 days
	// ago"); PostedAt keeps the parsed absolute time for recency checks.
	PostedAgo string     `json:"posted_ago,omitempty"`
	PostedAt  *time.Time `json:"-"`
}

// PipelineStats is attached to the final artifact and summarizes cost.
type PipelineStats struct {
	TotalCandidates  int     `json:"total_candidates"`
	ProfilesAnalyzed int     `json:"profiles_analyzed"`
	CacheHits        int     `json:"cache_hits"`
	APICalls         int     `json:"api_calls"`
	BatchesCompleted int     `json:"batches_completed"`
	BatchesFailed    int     `json:"batches_failed"`
	EnrichmentCost   float64 `json:"enrichment_cost_usd"`
	ScoringCost      float64 `json:"scoring_cost_usd"`
	TotalCost        float64 `json:"total_cost_usd"`
}
