package pipeline

import (
	"time"

	"github.com/google/uuid"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/observability"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
)

/*
finalize publishes the terminal result set: the top llm_top_n profiles as
the final artifact (with the stats block), everything past the cut as the
remaining artifact, and a last progressive refresh flagged complete. Cost
ledger rows are written before the status flips so an admin usage query
never sees a completed job with missing cost rows.
*/
func (r *jobRun) finalize() error {
	if err := r.checkCancel(); err != nil {
		return err
	}

	merged, err := r.mergeBatchArtifacts()
	if err != nil {
		return err
	}

	cut := r.params.LLMTopN
	if cut > len(merged) {
		cut = len(merged)
	}
	final := merged[:cut]
	remaining := merged[cut:]

	r.stats.EnrichmentCost = float64(r.stats.APICalls) * costPerCallUSD
	r.stats.ScoringCost = float64(r.stats.ProfilesAnalyzed) * costPerCallUSD
	r.stats.TotalCost = r.stats.EnrichmentCost + r.stats.ScoringCost

	if err := r.jc.UpsertArtifact(types.ArtifactFinal, map[string]any{
		"profiles":       final,
		"pipeline_stats": r.stats,
	}); err != nil {
		return err
	}
	if err := r.jc.UpsertArtifact(types.ArtifactRemaining, map[string]any{
		"profiles": remaining,
	}); err != nil {
		return err
	}
	if err := r.refreshProgressive(true); err != nil {
		return err
	}

	r.recordCosts()
	r.persistTiming()

	r.jc.MergeMeta(map[string]any{
		"enrichment_scoring": map[string]any{
			"status":            "completed",
			"batches_completed": r.stats.BatchesCompleted,
			"batches_failed":    r.stats.BatchesFailed,
			"good_found":        r.goodFound,
		},
	})

	r.jc.Complete(map[string]any{
		"total_candidates":  r.stats.TotalCandidates,
		"profiles_analyzed": r.stats.ProfilesAnalyzed,
		"good_found":        r.goodFound,
		"cache_hits":        r.stats.CacheHits,
		"api_calls":         r.stats.APICalls,
		"total_cost_usd":    r.stats.TotalCost,
	})
	return nil
}

// recordCosts writes the per-service ledger rows. Best-effort: the repo
// logs its own failures and the job still completes.
func (r *jobRun) recordCosts() {
	now := time.Now()
	dbc := dbctx.Context{Ctx: r.jc.Ctx}
	entries := []*types.ExternalCall{
		{
			ID:        uuid.New(),
			JobID:     r.jc.JobID(),
			APIKeyID:  r.jc.Job.APIKeyID,
			Service:   "enrichment",
			Operation: "snapshot",
			Ts:        now,
			Status:    "completed",
			CostUSD:   r.stats.EnrichmentCost,
		},
		{
			ID:        uuid.New(),
			JobID:     r.jc.JobID(),
			APIKeyID:  r.jc.Job.APIKeyID,
			Service:   "scoring",
			Operation: "score_profiles",
			Ts:        now,
			Status:    "completed",
			CostUSD:   r.stats.ScoringCost,
		},
	}
	for _, e := range entries {
		if err := r.h.calls.Record(dbc, e); err != nil {
			r.jc.Log.Warn("external call ledger write failed",
				"service", e.Service,
				"error", err.Error(),
			)
		}
		observability.Current().AddCost(e.Service, e.Operation, e.CostUSD)
	}
}
