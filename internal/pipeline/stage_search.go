package pipeline

import (
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/external/vectorindex"
)

/*
vectorSearch runs stage 2: embed the deduplicated keywords in one batched
call, fan the {keyword x alpha} product out against the index under the
global in-flight cap, then merge with URL-level dedupe keeping the highest
hybrid score per profile.
*/
func (r *jobRun) vectorSearch(keywords []string) ([]Candidate, error) {
	stage := types.StageVectorSearch
	r.wf.begin(stage)
	r.jc.Event(types.EventInfo, types.EventStageStarted, map[string]any{"stage": stage})
	r.jc.MergeMeta(map[string]any{
		"vector_search": map[string]any{"status": "running"},
	})

	keywords = dedupeKeywords(keywords)
	if err := r.checkCancel(); err != nil {
		return nil, err
	}

	vectors, err := r.h.embedder.Embed(r.jc.Ctx, keywords)
	if err != nil {
		r.jc.MergeMeta(map[string]any{
			"vector_search": map[string]any{"status": "error"},
		})
		return nil, err
	}
	if !r.jc.Progress(stage, 20) {
		return nil, errCancelled
	}

	perSearchLimit := searchLimit(r.params.WeaviateTopN, len(keywords))

	exclusions := make(map[string]struct{}, len(r.params.ExcludeProfileURLs))
	for _, u := range r.params.ExcludeProfileURLs {
		if n := NormalizeProfileURL(u); n != "" {
			exclusions[n] = struct{}{}
		}
	}
	fetchLimit := perSearchLimit
	if len(exclusions) > 0 {
		fetchLimit += len(exclusions)
	}

	var (
		mu     sync.Mutex
		merged = map[string]Candidate{}
	)

	g, gctx := errgroup.WithContext(r.jc.Ctx)
	g.SetLimit(maxSearchInFlight)

	for i, kw := range keywords {
		for _, alpha := range hybridAlphas {
			kw, vec, alpha := kw, vectors[i], alpha
			g.Go(func() error {
				if r.jc.CancelRequested() {
					return errCancelled
				}
				rows, err := r.h.index.HybridSearch(gctx, vectorindex.HybridQuery{
					Query:        kw,
					Vector:       vec,
					Alpha:        alpha,
					Limit:        fetchLimit,
					Platform:     r.params.Platform,
					MinFollowers: r.params.MinFollowers,
					MaxFollowers: r.params.MaxFollowers,
				})
				if err != nil {
					return err
				}

				kept := make([]Candidate, 0, len(rows))
				for _, row := range rows {
					n := NormalizeProfileURL(row.ProfileURL)
					if n == "" {
						continue
					}
					if _, excluded := exclusions[n]; excluded {
						continue
					}
					kept = append(kept, Candidate{Candidate: row, NormalizedURL: n})
					if len(kept) >= perSearchLimit {
						break
					}
				}

				mu.Lock()
				for _, c := range kept {
					if prev, ok := merged[c.NormalizedURL]; !ok || c.Score > prev.Score {
						merged[c.NormalizedURL] = c
					}
				}
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		r.jc.MergeMeta(map[string]any{
			"vector_search": map[string]any{"status": statusForErr(err)},
		})
		return nil, err
	}

	candidates := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].NormalizedURL < candidates[j].NormalizedURL
	})
	if len(candidates) > r.params.WeaviateTopN {
		candidates = candidates[:r.params.WeaviateTopN]
	}
	r.stats.TotalCandidates = len(candidates)

	if err := r.jc.UpsertArtifact(types.ArtifactCandidates, map[string]any{
		"candidates": candidates,
	}); err != nil {
		return nil, err
	}

	r.jc.MergeMeta(map[string]any{
		"vector_search": map[string]any{
			"status":          "completed",
			"keyword_count":   len(keywords),
			"search_count":    len(keywords) * len(hybridAlphas),
			"candidate_count": len(candidates),
		},
	})
	if !r.jc.Progress(stage, 50) {
		return nil, errCancelled
	}
	r.wf.end(stage, "completed")
	r.jc.Event(types.EventInfo, types.EventCandidatesReady, map[string]any{
		"count": len(candidates),
	})
	return candidates, nil
}

func dedupeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// searchLimit spreads the requested result budget across keywords with a
// 25% over-fetch, floored so sparse keyword sets still probe deeply.
func searchLimit(weaviateTopN, keywordCount int) int {
	if keywordCount < 1 {
		keywordCount = 1
	}
	perKeyword := int(math.Ceil(float64(weaviateTopN) * 1.25 / float64(keywordCount)))
	if perKeyword < 500 {
		return 500
	}
	return perKeyword
}
