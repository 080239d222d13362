package scoring

import "context"

/*
Scorer is the language-model surface the pipeline uses twice: once to
expand a business description into search keywords, then per-profile to
judge fit. Both calls demand structured JSON so downstream code never
parses prose.
*/
type Scorer interface {
	// ExpandQuery turns the description into a small ordered keyword list
	// covering broad, specific, and adjacent facets.
	ExpandQuery(ctx context.Context, description string) ([]string, error)
	Score(ctx context.Context, req ScoreRequest) (ScoreResult, error)
}

// ScoreRequest scores one profile against one description. ProfileText is
// the pre-rendered profile summary (bio, followers, recent posts).
type ScoreRequest struct {
	ProfileText    string
	Description    string
	StrictLocation bool
}

// ScoreResult is the model's verdict on the 1..10 scale.
type ScoreResult struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
	Summary   string `json:"summary"`
}
