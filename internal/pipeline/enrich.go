package pipeline

import (
	"errors"
	"sync"
	"time"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/external/enrichment"
)

// errNoUsableBatches surfaces when every batch in the plan failed; a run
// with at least one processed batch always finalizes instead.
var errNoUsableBatches = errors.New("enrichment produced no usable batches")

type inFlightSnapshot struct {
	batch       planBatch
	triggeredAt time.Time
}

/*
enrichAndScore runs the interleaved stage 3/4: build the batch plan from a
bulk cache probe, drain the cache batches first (Phase A), and only fall
through to the provider fan-out (Phase B) when the cache alone has not
produced llm_top_n good fits. Phase B keeps at most five snapshots
in-flight, polls them on a ten-second cadence, ages out snapshots after
five minutes, and processes ready downloads one at a time so the scoring
cap stays meaningful.
*/
func (r *jobRun) enrichAndScore(candidates []Candidate) error {
	r.wf.begin(types.StageEnrichment)
	r.jc.Event(types.EventInfo, types.EventStageStarted, map[string]any{
		"stage": types.StageEnrichment,
	})

	if len(candidates) == 0 {
		r.wf.end(types.StageEnrichment, "completed")
		return r.finalize()
	}

	plan, err := r.buildPlan(candidates)
	if err != nil {
		return err
	}
	r.totalBatches = plan.totalBatches
	r.stats.CacheHits = plan.cacheHits
	r.jc.MergeMeta(map[string]any{
		"enrichment_scoring": map[string]any{
			"status":        "running",
			"total_batches": plan.totalBatches,
			"cache_batches": len(plan.cacheBatches),
			"fetch_batches": len(plan.fetchBatches),
			"cache_hits":    plan.cacheHits,
		},
	})

	targetGood := r.params.LLMTopN
	deadline := time.Now().Add(stageTimeout)

	// Phase A: cached payloads, no provider round-trips.
	for _, b := range plan.cacheBatches {
		good, err := r.processBatch(b, b.cached, false)
		if err != nil {
			return err
		}
		r.goodFound += good
	}

	r.wf.end(types.StageEnrichment, "completed")
	r.wf.begin(types.StageScoring)

	if r.goodFound >= targetGood || len(plan.fetchBatches) == 0 {
		if len(plan.fetchBatches) > 0 {
			r.jc.Log.Info("cache satisfied good-fit target; skipping fetch phase",
				"good_found", r.goodFound,
				"skipped_batches", len(plan.fetchBatches),
			)
		}
		r.wf.end(types.StageScoring, "completed")
		return r.finalize()
	}

	if err := r.fetchPhase(plan.fetchBatches, targetGood, deadline); err != nil {
		return err
	}

	if r.totalBatches > 0 && r.stats.BatchesCompleted == 0 {
		return errNoUsableBatches
	}
	r.wf.end(types.StageScoring, "completed")
	return r.finalize()
}

// fetchPhase is the Phase B loop: trigger, poll, age out, download, score.
func (r *jobRun) fetchPhase(pending []planBatch, targetGood int, deadline time.Time) error {
	inFlight := map[string]*inFlightSnapshot{}

	for len(pending) > 0 || len(inFlight) > 0 {
		if err := r.checkCancel(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			r.jc.Log.Warn("enrichment stage deadline exceeded",
				"pending", len(pending),
				"in_flight", len(inFlight),
			)
			r.stats.BatchesFailed += len(pending) + len(inFlight)
			return nil
		}

		// Stop topping up once the target is met; in-flight snapshots
		// still drain so their profiles are not wasted.
		if r.goodFound >= targetGood {
			pending = nil
		}
		var err error
		pending, err = r.topUp(pending, inFlight)
		if err != nil {
			return err
		}
		if len(inFlight) == 0 {
			continue
		}

		ready, err := r.pollInFlight(inFlight)
		if err != nil {
			return err
		}

		// Overlap the next batch's trigger latency with this round's
		// downloads.
		if r.goodFound >= targetGood {
			pending = nil
		}
		pending, err = r.topUp(pending, inFlight)
		if err != nil {
			return err
		}

		for _, id := range ready {
			snap := inFlight[id]
			delete(inFlight, id)
			if err := r.downloadAndProcess(id, snap.batch); err != nil {
				return err
			}
		}

		if len(pending) > 0 || len(inFlight) > 0 {
			if err := r.sleepResponsive(pollInterval); err != nil {
				return err
			}
		}
	}
	return nil
}

// topUp triggers pending batches until the in-flight cap is reached and
// returns the batches still waiting. A failed trigger costs only its batch.
func (r *jobRun) topUp(pending []planBatch, inFlight map[string]*inFlightSnapshot) ([]planBatch, error) {
	for len(pending) > 0 && len(inFlight) < maxInFlightBatches {
		if err := r.checkCancel(); err != nil {
			return pending, err
		}
		b := pending[0]
		pending = pending[1:]

		snapshotID, err := r.h.enricher.Trigger(r.jc.Ctx, b.platform, b.urls)
		if err != nil {
			if r.jc.Ctx.Err() != nil {
				return pending, r.jc.Ctx.Err()
			}
			r.batchFailed(b, "trigger failed: "+err.Error())
			continue
		}
		inFlight[snapshotID] = &inFlightSnapshot{batch: b, triggeredAt: time.Now()}
		r.jc.Log.Info("enrichment snapshot triggered",
			"batch", b.index,
			"platform", b.platform,
			"urls", len(b.urls),
			"snapshot_id", snapshotID,
		)
	}
	return pending, nil
}

/*
pollInFlight checks every in-flight snapshot concurrently and returns the
ids ready for download. Failed snapshots and snapshots older than the
per-batch timeout are removed and counted against batches_failed; a poll
error leaves the snapshot in place for the next round (its age check
bounds how long that can go on).
*/
func (r *jobRun) pollInFlight(inFlight map[string]*inFlightSnapshot) ([]string, error) {
	type pollResult struct {
		id     string
		status enrichment.SnapshotStatus
		err    error
	}

	results := make([]pollResult, 0, len(inFlight))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for id := range inFlight {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, err := r.h.enricher.Progress(r.jc.Ctx, id)
			mu.Lock()
			results = append(results, pollResult{id: id, status: status, err: err})
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	if r.jc.Ctx.Err() != nil {
		return nil, r.jc.Ctx.Err()
	}

	now := time.Now()
	var ready []string
	for _, res := range results {
		snap := inFlight[res.id]
		switch {
		case res.err == nil && res.status == enrichment.SnapshotReady:
			ready = append(ready, res.id)
		case res.err == nil && res.status == enrichment.SnapshotFailed:
			delete(inFlight, res.id)
			r.batchFailed(snap.batch, "provider reported snapshot failed")
		default:
			if res.err != nil {
				r.jc.Log.Warn("snapshot progress check failed",
					"snapshot_id", res.id,
					"error", res.err.Error(),
				)
			}
			if now.Sub(snap.triggeredAt) >= batchTimeout {
				delete(inFlight, res.id)
				r.batchFailed(snap.batch, "snapshot timed out")
			}
		}
	}
	return ready, nil
}

func (r *jobRun) downloadAndProcess(snapshotID string, b planBatch) error {
	if err := r.checkCancel(); err != nil {
		return err
	}
	payloads, err := r.h.enricher.Download(r.jc.Ctx, snapshotID)
	if err != nil {
		if r.jc.Ctx.Err() != nil {
			return r.jc.Ctx.Err()
		}
		r.batchFailed(b, "download failed: "+err.Error())
		return nil
	}
	r.stats.APICalls += len(payloads)

	good, err := r.processBatch(b, payloads, true)
	if err != nil {
		return err
	}
	r.goodFound += good
	return nil
}

func (r *jobRun) batchFailed(b planBatch, reason string) {
	r.stats.BatchesFailed++
	r.jc.Log.Warn("enrichment batch failed",
		"batch", b.index,
		"platform", b.platform,
		"reason", reason,
	)
	r.jc.Event(types.EventWarn, types.EventBatchFailed, map[string]any{
		"batch":    b.index,
		"platform": b.platform,
		"reason":   reason,
	})
	r.updateBatchProgress()
}

// sleepResponsive sleeps in short slices so a cancel request is observed
// within half a second rather than a full poll interval.
func (r *jobRun) sleepResponsive(d time.Duration) error {
	const slice = 500 * time.Millisecond
	for remaining := d; remaining > 0; remaining -= slice {
		if err := r.checkCancel(); err != nil {
			return err
		}
		step := slice
		if remaining < slice {
			step = remaining
		}
		select {
		case <-r.jc.Ctx.Done():
			return r.jc.Ctx.Err()
		case <-time.After(step):
		}
	}
	return nil
}
