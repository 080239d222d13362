package pipeline

import (
	"context"
	"errors"

	"github.com/scoutline/scoutline-backend/internal/data/repos/cache"
	"github.com/scoutline/scoutline-backend/internal/data/repos/ledger"
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/external/embeddings"
	"github.com/scoutline/scoutline-backend/internal/external/enrichment"
	"github.com/scoutline/scoutline-backend/internal/external/scoring"
	"github.com/scoutline/scoutline-backend/internal/external/vectorindex"
	"github.com/scoutline/scoutline-backend/internal/jobs/runtime"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"

	"golang.org/x/sync/semaphore"
)

// errCancelled unwinds a stage when the cancel flag is observed. It is a
// control-flow sentinel, never surfaced to callers.
var errCancelled = errors.New("job cancelled")

/*
Handler drives one job through the four pipeline stages:

	query_expansion -> vector_search -> enrichment + scoring (interleaved)

Each stage checks cancellation at its await points and records its bar in
the timing waterfall. Fatal stage errors terminate the job here; only
infrastructure failures (nothing persisted yet, safe to redeliver) return
non-nil to the worker.
*/
type Handler struct {
	log      *logger.Logger
	embedder embeddings.Embedder
	index    vectorindex.Index
	enricher enrichment.Provider
	scorer   scoring.Scorer
	profiles cache.ProfileCacheRepo
	calls    ledger.ExternalCallRepo
	cacheTTL int

	// scoreSem caps scoring fan-out process-wide, across every job this
	// worker runs concurrently.
	scoreSem *semaphore.Weighted
}

func NewHandler(
	baseLog *logger.Logger,
	embedder embeddings.Embedder,
	index vectorindex.Index,
	enricher enrichment.Provider,
	scorer scoring.Scorer,
	profiles cache.ProfileCacheRepo,
	calls ledger.ExternalCallRepo,
	cacheTTLDays int,
) *Handler {
	if cacheTTLDays <= 0 {
		cacheTTLDays = 14
	}
	return &Handler{
		log:      baseLog.With("component", "Pipeline"),
		embedder: embedder,
		index:    index,
		enricher: enricher,
		scorer:   scorer,
		profiles: profiles,
		calls:    calls,
		cacheTTL: cacheTTLDays,
		scoreSem: semaphore.NewWeighted(scoringConcurrency),
	}
}

func (h *Handler) Run(jc *runtime.Context) error {
	params, err := jc.Params()
	if err != nil {
		jc.Fail(types.StageNone, types.JobError{
			Kind:    "validation",
			Message: "malformed job params: " + err.Error(),
		})
		return nil
	}

	wf := newWaterfall()
	run := &jobRun{
		h:      h,
		jc:     jc,
		params: params,
		wf:     wf,
	}

	if jc.CancelRequested() {
		jc.Cancelled(types.StageNone)
		return nil
	}

	keywords, err := run.expandQueries()
	if err != nil {
		return run.stageExit(types.StageQueryExpansion, err)
	}

	candidates, err := run.vectorSearch(keywords)
	if err != nil {
		return run.stageExit(types.StageVectorSearch, err)
	}

	if err := run.enrichAndScore(candidates); err != nil {
		return run.stageExit(types.StageScoring, err)
	}
	return nil
}

// stageExit folds a stage error into the job's terminal state. Cancelled
// and context-cancelled unwinds are clean; anything else is fatal.
func (r *jobRun) stageExit(stage string, err error) error {
	r.wf.end(stage, statusForErr(err))
	r.persistTiming()

	switch {
	case errors.Is(err, errCancelled):
		r.jc.Cancelled(stage)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Worker shutdown mid-run: leave the claim to stale-recovery.
		return err
	default:
		r.jc.Fail(stage, types.JobError{
			Kind:    "upstream",
			Stage:   stage,
			Message: err.Error(),
		})
	}
	return nil
}

func statusForErr(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, errCancelled):
		return "cancelled"
	default:
		return "error"
	}
}

// jobRun is the per-execution state shared across stage methods.
type jobRun struct {
	h      *Handler
	jc     *runtime.Context
	params types.JobParams
	wf     *waterfall

	stats PipelineStats

	// totalBatches and goodFound are written by the single-threaded
	// enrichment loop; batch-internal concurrency never touches them.
	totalBatches int
	goodFound    int
}

func (r *jobRun) persistTiming() {
	if err := r.jc.UpsertArtifact(types.ArtifactTiming, map[string]any{
		"stages": r.wf.snapshot(),
	}); err != nil {
		r.jc.Log.Warn("timing artifact upsert failed", "error", err.Error())
	}
}

// checkCancel is the per-await cancellation probe.
func (r *jobRun) checkCancel() error {
	if r.jc.CancelRequested() {
		return errCancelled
	}
	return nil
}
