package pipeline

import (
	types "github.com/scoutline/scoutline-backend/internal/domain"
)

// expandQueries runs stage 1: the scoring model turns the business
// description into an ordered keyword list.
func (r *jobRun) expandQueries() ([]string, error) {
	stage := types.StageQueryExpansion
	r.wf.begin(stage)
	r.jc.Event(types.EventInfo, types.EventStageStarted, map[string]any{"stage": stage})
	r.jc.MergeMeta(map[string]any{
		"query_expansion": map[string]any{"status": "running"},
	})

	if err := r.checkCancel(); err != nil {
		return nil, err
	}

	keywords, err := r.h.scorer.ExpandQuery(r.jc.Ctx, r.params.BusinessDescription)
	if err != nil {
		r.jc.MergeMeta(map[string]any{
			"query_expansion": map[string]any{"status": "error"},
		})
		return nil, err
	}

	r.jc.MergeMeta(map[string]any{
		"query_expansion": map[string]any{
			"status":      "completed",
			"query_count": len(keywords),
			"prompt":      r.params.BusinessDescription,
		},
	})
	if !r.jc.Progress(stage, 10) {
		return nil, errCancelled
	}
	r.wf.end(stage, "completed")
	r.jc.Event(types.EventInfo, types.EventStageCompleted, map[string]any{
		"stage":    stage,
		"keywords": keywords,
	})
	return keywords, nil
}
