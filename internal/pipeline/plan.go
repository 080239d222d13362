package pipeline

import (
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/external/enrichment"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
)

/*
The enrichment plan is built up front so total_batches is stable for
progress reporting: a bulk cache probe splits candidates into cache-hit
and uncached sets, each grouped by platform and chunked into batches.
Batch indexes are global across both phases so batch:N artifacts never
collide.
*/
type planBatch struct {
	index    int
	platform string
	urls     []string
	// cached carries the raw payloads for Phase A batches; nil for
	// batches that must be fetched.
	cached []enrichment.RawProfile
}

type enrichPlan struct {
	cacheBatches []planBatch
	fetchBatches []planBatch
	totalBatches int
	cacheHits    int
}

func (r *jobRun) buildPlan(candidates []Candidate) (*enrichPlan, error) {
	keys := make([]string, 0, len(candidates))
	keyToURL := make(map[string]string, len(candidates))
	for _, c := range candidates {
		k := CacheKey(c.ProfileURL)
		keys = append(keys, k)
		keyToURL[k] = c.ProfileURL
	}

	hits, err := r.h.profiles.BulkGet(dbctx.Context{Ctx: r.jc.Ctx}, keys)
	if err != nil {
		return nil, err
	}

	cachedByPlatform := map[string][]enrichment.RawProfile{}
	uncachedByPlatform := map[string][]string{}
	for _, c := range candidates {
		k := CacheKey(c.ProfileURL)
		platform := c.Platform
		if platform == "" || platform == types.PlatformUnknown {
			platform = PlatformFromURL(c.ProfileURL)
		}
		if entry, ok := hits[k]; ok {
			cachedByPlatform[platform] = append(cachedByPlatform[platform],
				enrichment.RawProfile(entry.RawData))
			continue
		}
		uncachedByPlatform[platform] = append(uncachedByPlatform[platform], c.ProfileURL)
	}

	plan := &enrichPlan{cacheHits: len(hits)}
	next := 0

	for _, platform := range []string{types.PlatformInstagram, types.PlatformTikTok, types.PlatformUnknown} {
		payloads := cachedByPlatform[platform]
		for start := 0; start < len(payloads); start += batchSize {
			end := start + batchSize
			if end > len(payloads) {
				end = len(payloads)
			}
			plan.cacheBatches = append(plan.cacheBatches, planBatch{
				index:    next,
				platform: platform,
				cached:   payloads[start:end],
			})
			next++
		}
	}

	for _, platform := range []string{types.PlatformInstagram, types.PlatformTikTok} {
		urls := uncachedByPlatform[platform]
		for start := 0; start < len(urls); start += batchSize {
			end := start + batchSize
			if end > len(urls) {
				end = len(urls)
			}
			plan.fetchBatches = append(plan.fetchBatches, planBatch{
				index:    next,
				platform: platform,
				urls:     urls[start:end],
			})
			next++
		}
	}

	// Uncached profiles on an unrecognized platform cannot be enriched;
	// they are dropped from the plan, not failed.
	if skipped := len(uncachedByPlatform[types.PlatformUnknown]); skipped > 0 {
		r.jc.Log.Warn("skipping unenrichable candidates", "count", skipped)
	}

	plan.totalBatches = len(plan.cacheBatches) + len(plan.fetchBatches)
	return plan, nil
}
