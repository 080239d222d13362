package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/external/enrichment"
	"github.com/scoutline/scoutline-backend/internal/external/scoring"
	"github.com/scoutline/scoutline-backend/internal/observability"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
)

const scoreRetries = 2

/*
processBatch is the routine shared between Phase A cache batches and
Phase B downloaded snapshots: normalize, score under the global scoring
cap, persist the batch artifact, refresh the progressive view, and report
how many good fits the batch contributed. Batches run one at a time; only
the per-profile scoring inside a batch is concurrent.
*/
func (r *jobRun) processBatch(b planBatch, payloads []enrichment.RawProfile, fetched bool) (int, error) {
	if err := r.checkCancel(); err != nil {
		return 0, err
	}
	now := time.Now()

	profiles := make([]ScoredProfile, 0, len(payloads))
	var rejected []string
	for _, raw := range payloads {
		p, err := normalizeProfile(raw, b.platform, now)
		if err != nil {
			rejected = append(rejected, err.Error())
			continue
		}
		profiles = append(profiles, p)
	}
	if len(rejected) > 0 {
		observability.ReportDataQualityErrors(r.jc.Ctx, r.jc.Log, "enrichment", rejected, map[string]any{
			"batch":    b.index,
			"platform": b.platform,
		})
	}

	if err := r.scoreProfiles(profiles, now); err != nil {
		return 0, err
	}
	r.stats.ProfilesAnalyzed += len(profiles)

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Fit > profiles[j].Fit
	})

	if err := r.jc.UpsertArtifact(types.BatchKind(b.index), map[string]any{
		"batch":    b.index,
		"platform": b.platform,
		"profiles": profiles,
	}); err != nil {
		return 0, err
	}
	r.stats.BatchesCompleted++

	good := 0
	for _, p := range profiles {
		if p.Fit >= goodFitThreshold {
			good++
		}
	}

	r.jc.Event(types.EventInfo, types.EventBatchCompleted, map[string]any{
		"batch":     b.index,
		"platform":  b.platform,
		"profiles":  len(profiles),
		"good_fits": good,
	})

	if err := r.refreshProgressive(false); err != nil {
		r.jc.Log.Warn("progressive refresh failed", "error", err.Error())
	}
	r.updateBatchProgress()

	if fetched && len(payloads) > 0 {
		go r.writeBackCache(b.platform, payloads)
	}
	return good, nil
}

// scoreProfiles fans scoring out under the process-wide concurrency cap.
// A profile whose scoring fails after retries keeps fit 0 rather than
// failing the batch.
func (r *jobRun) scoreProfiles(profiles []ScoredProfile, now time.Time) error {
	g, gctx := errgroup.WithContext(r.jc.Ctx)

	for i := range profiles {
		p := &profiles[i]
		g.Go(func() error {
			if err := r.h.scoreSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer r.h.scoreSem.Release(1)

			if !lastPostWithin(*p, inactiveWindow, now) {
				p.Fit = 0
				p.Rationale = "inactive - no posts in last 60 days"
				return nil
			}

			req := scoring.ScoreRequest{
				ProfileText:    profileText(*p),
				Description:    r.params.BusinessDescription,
				StrictLocation: r.params.StrictLocationMatching,
			}

			backoff := 1 * time.Second
			for attempt := 0; ; attempt++ {
				res, err := r.h.scorer.Score(gctx, req)
				if err == nil {
					p.Fit = int(float64(res.Score) / 10.0 * 100.0)
					p.Rationale = res.Rationale
					p.Summary = res.Summary
					return nil
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if attempt >= scoreRetries {
					r.jc.Log.Warn("scoring failed; profile kept at fit 0",
						"profile_url", p.ProfileURL,
						"error", err.Error(),
					)
					p.Fit = 0
					p.Rationale = "scoring unavailable"
					return nil
				}
				time.Sleep(backoff)
				backoff *= 2
			}
		})
	}
	return g.Wait()
}

// refreshProgressive merges every batch artifact into the live top-N view.
func (r *jobRun) refreshProgressive(complete bool) error {
	merged, err := r.mergeBatchArtifacts()
	if err != nil {
		return err
	}
	top := merged
	if len(top) > r.params.LLMTopN {
		top = top[:r.params.LLMTopN]
	}
	if err := r.jc.UpsertArtifact(types.ArtifactProgressive, map[string]any{
		"profiles":    top,
		"is_complete": complete,
	}); err != nil {
		return err
	}
	r.jc.Event(types.EventInfo, types.EventProgressiveUpdated, map[string]any{
		"count":       len(top),
		"is_complete": complete,
	})
	return nil
}

// mergeBatchArtifacts reads every batch:N artifact back and returns all
// profiles sorted by fit descending.
func (r *jobRun) mergeBatchArtifacts() ([]ScoredProfile, error) {
	rows, err := r.jc.Artifacts.ListBatches(dbctx.Context{Ctx: r.jc.Ctx}, r.jc.JobID())
	if err != nil {
		return nil, err
	}
	var merged []ScoredProfile
	for _, row := range rows {
		var blob struct {
			Profiles []ScoredProfile `json:"profiles"`
		}
		if err := json.Unmarshal(row.Data, &blob); err != nil {
			continue
		}
		merged = append(merged, blob.Profiles...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Fit > merged[j].Fit
	})
	return merged, nil
}

func (r *jobRun) updateBatchProgress() {
	total := r.totalBatches
	if total <= 0 {
		return
	}
	pct := 50 + 45*r.stats.BatchesCompleted/total
	if pct > 95 {
		pct = 95
	}
	r.jc.Progress(types.StageScoring, pct)
	r.jc.MergeMeta(map[string]any{
		"enrichment_scoring": map[string]any{
			"batches_completed": r.stats.BatchesCompleted,
			"batches_failed":    r.stats.BatchesFailed,
			"good_found":        r.goodFound,
		},
	})
}

// writeBackCache stores freshly fetched payloads for future jobs.
// Best-effort: a failed write is logged and forgotten.
func (r *jobRun) writeBackCache(platform string, payloads []enrichment.RawProfile) {
	now := time.Now()
	ttl := time.Duration(r.h.cacheTTL) * 24 * time.Hour
	entries := make([]*types.ProfileCacheEntry, 0, len(payloads))
	for _, raw := range payloads {
		p, err := normalizeProfile(raw, platform, now)
		if err != nil {
			continue
		}
		entries = append(entries, &types.ProfileCacheEntry{
			CacheKey:      CacheKey(p.ProfileURL),
			NormalizedURL: NormalizeProfileURL(p.ProfileURL),
			Platform:      platform,
			RawData:       datatypes.JSON(raw),
			CachedAt:      now,
			ExpiresAt:     now.Add(ttl),
		})
	}
	if len(entries) == 0 {
		return
	}
	if err := r.h.profiles.Put(dbctx.Context{Ctx: context.Background()}, entries); err != nil {
		r.jc.Log.Warn("profile cache write-back failed",
			"count", len(entries),
			"error", err.Error(),
		)
	}
}
