package admission

import (
	"fmt"
	"strings"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/apierr"
)

const (
	defaultTopN          = 30
	defaultWeaviateTopN  = 1000
	maxIdempotencyKeyLen = 128
)

// SubmitRequest is the POST /pipeline/start body.
type SubmitRequest struct {
	BusinessDescription    string   `json:"business_description"`
	TopN                   int      `json:"top_n"`
	WeaviateTopN           int      `json:"weaviate_top_n"`
	LLMTopN                int      `json:"llm_top_n"`
	MinFollowers           int      `json:"min_followers"`
	MaxFollowers           int      `json:"max_followers"`
	Platform               string   `json:"platform"`
	ExcludeProfileURLs     []string `json:"exclude_profile_urls"`
	StrictLocationMatching bool     `json:"strict_location_matching"`
}

func invalid(format string, args ...any) error {
	return apierr.Validation(fmt.Errorf(format, args...))
}

/*
validate applies defaults and bounds, returning the normalized params that
get stored on the job row. Counts default conservatively: top_n 30,
weaviate_top_n 1000, llm_top_n = top_n.
*/
func (req SubmitRequest) validate() (types.JobParams, error) {
	var p types.JobParams

	desc := strings.TrimSpace(req.BusinessDescription)
	if desc == "" {
		return p, invalid("business_description is required")
	}

	topN := req.TopN
	if topN == 0 {
		topN = defaultTopN
	}
	if topN < 1 || topN > 1000 {
		return p, invalid("top_n must be in [1, 1000], got %d", req.TopN)
	}

	weaviateTopN := req.WeaviateTopN
	if weaviateTopN == 0 {
		weaviateTopN = defaultWeaviateTopN
	}
	if weaviateTopN < 10 || weaviateTopN > 5000 {
		return p, invalid("weaviate_top_n must be in [10, 5000], got %d", req.WeaviateTopN)
	}

	llmTopN := req.LLMTopN
	if llmTopN == 0 {
		llmTopN = topN
	}
	if llmTopN < 1 || llmTopN > 1000 {
		return p, invalid("llm_top_n must be in [1, 1000], got %d", req.LLMTopN)
	}
	if llmTopN > weaviateTopN {
		return p, invalid("llm_top_n (%d) cannot exceed weaviate_top_n (%d)", llmTopN, weaviateTopN)
	}

	if req.MinFollowers < 0 {
		return p, invalid("min_followers cannot be negative")
	}
	if req.MaxFollowers < 0 {
		return p, invalid("max_followers cannot be negative")
	}
	if req.MaxFollowers > 0 && req.MinFollowers > req.MaxFollowers {
		return p, invalid("min_followers (%d) exceeds max_followers (%d)", req.MinFollowers, req.MaxFollowers)
	}

	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	switch platform {
	case "", types.PlatformInstagram, types.PlatformTikTok:
	default:
		return p, invalid("platform must be %q or %q, got %q",
			types.PlatformInstagram, types.PlatformTikTok, req.Platform)
	}

	exclusions := make([]string, 0, len(req.ExcludeProfileURLs))
	for _, u := range req.ExcludeProfileURLs {
		if u = strings.TrimSpace(u); u != "" {
			exclusions = append(exclusions, u)
		}
	}

	return types.JobParams{
		BusinessDescription:    desc,
		TopN:                   topN,
		WeaviateTopN:           weaviateTopN,
		LLMTopN:                llmTopN,
		MinFollowers:           req.MinFollowers,
		MaxFollowers:           req.MaxFollowers,
		Platform:               platform,
		ExcludeProfileURLs:     exclusions,
		StrictLocationMatching: req.StrictLocationMatching,
	}, nil
}
