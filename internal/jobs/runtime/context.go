package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	jobsrepo "github.com/scoutline/scoutline-backend/internal/data/repos/jobs"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
Context is the execution contract between the job system and pipeline code.
It is a capability-scoped handle for a single claimed job: the only
sanctioned way to report progress, append events, persist artifacts, or
terminate execution. Terminal statuses are write-once; every mutation here
goes through the unless-terminal guard so a cancel or a competing terminal
write always wins.

Pipeline code never touches the job row directly.
*/
type Context struct {
	Ctx context.Context
	DB  *gorm.DB
	Job *types.PipelineJob
	Log *logger.Logger

	Jobs      jobsrepo.PipelineJobRepo
	Events    jobsrepo.EventRepo
	Artifacts jobsrepo.ArtifactRepo

	params *types.JobParams
}

func NewContext(
	ctx context.Context,
	db *gorm.DB,
	job *types.PipelineJob,
	jobs jobsrepo.PipelineJobRepo,
	events jobsrepo.EventRepo,
	artifacts jobsrepo.ArtifactRepo,
	log *logger.Logger,
) *Context {
	return &Context{
		Ctx:       ctx,
		DB:        db,
		Job:       job,
		Log:       log.With("job_id", job.JobID.String()),
		Jobs:      jobs,
		Events:    events,
		Artifacts: artifacts,
	}
}

// Params decodes the submitted job parameters once and caches them.
func (c *Context) Params() (types.JobParams, error) {
	if c.params != nil {
		return *c.params, nil
	}
	var p types.JobParams
	if len(c.Job.Params) > 0 {
		if err := json.Unmarshal(c.Job.Params, &p); err != nil {
			return types.JobParams{}, err
		}
	}
	c.params = &p
	return p, nil
}

func (c *Context) dbc() dbctx.Context {
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return dbctx.Context{Ctx: ctx}
}

/*
Progress publishes a non-terminal status update: stage, percent, and a
heartbeat so stale-claim recovery knows this worker is alive. The write is
rejected once the job is terminal; callers treat that as "stop quietly".
*/
func (c *Context) Progress(stage string, pct int) bool {
	now := time.Now()
	ok, err := c.Jobs.UpdateFieldsUnlessStatus(c.dbc(), c.Job.JobID, types.TerminalStatuses, map[string]any{
		"current_stage": stage,
		"progress":      pct,
		"heartbeat_at":  now,
		"updated_at":    now,
	})
	if err != nil {
		c.Log.Warn("progress update failed", "stage", stage, "error", err.Error())
		return true
	}
	if !ok {
		return false
	}
	c.Job.CurrentStage = stage
	c.Job.Progress = pct
	c.Job.HeartbeatAt = &now
	c.Job.UpdatedAt = now

	c.Event(types.EventInfo, types.EventProgress, map[string]any{
		"stage":    stage,
		"progress": pct,
	})
	return true
}

// Heartbeat refreshes the claim without touching stage or progress.
func (c *Context) Heartbeat() {
	if err := c.Jobs.Heartbeat(c.dbc(), c.Job.JobID); err != nil {
		c.Log.Warn("heartbeat failed", "error", err.Error())
	}
}

// Event appends to the job's ordered event log. Append failures are logged
// and swallowed: the event log is observability, not state.
func (c *Context) Event(level string, eventType string, payload any) {
	if _, err := c.Events.Append(c.dbc(), c.Job.JobID, level, eventType, payload); err != nil {
		c.Log.Warn("event append failed", "type", eventType, "error", err.Error())
	}
}

/*
CancelRequested re-reads the job row and reports whether a cancel has been
asked for or already applied. Pipeline code calls this at every await
point; a true return means unwind via Cancelled.
*/
func (c *Context) CancelRequested() bool {
	fresh, err := c.Jobs.GetByID(c.dbc(), c.Job.JobID)
	if err != nil || fresh == nil {
		return false
	}
	c.Job.CancelRequested = fresh.CancelRequested
	c.Job.Status = fresh.Status
	return fresh.CancelRequested || fresh.Status == types.JobStatusCancelled
}

/*
MergeMeta deep-merges patch into the job's meta JSON (one level: top-level
keys replace, nested maps merge key-wise) and persists it. Meta carries the
per-stage bookkeeping the UI reads: stage statuses, batch counters, the
waterfall timing.
*/
func (c *Context) MergeMeta(patch map[string]any) {
	meta := map[string]any{}
	if len(c.Job.Meta) > 0 {
		_ = json.Unmarshal(c.Job.Meta, &meta)
	}
	for k, v := range patch {
		existing, haveOld := meta[k].(map[string]any)
		incoming, haveNew := v.(map[string]any)
		if haveOld && haveNew {
			for kk, vv := range incoming {
				existing[kk] = vv
			}
			meta[k] = existing
			continue
		}
		meta[k] = v
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		c.Log.Warn("meta encode failed", "error", err.Error())
		return
	}
	now := time.Now()
	ok, err := c.Jobs.UpdateFieldsUnlessStatus(c.dbc(), c.Job.JobID, types.TerminalStatuses, map[string]any{
		"meta":       datatypes.JSON(raw),
		"updated_at": now,
	})
	if err != nil {
		c.Log.Warn("meta update failed", "error", err.Error())
		return
	}
	if ok {
		c.Job.Meta = datatypes.JSON(raw)
		c.Job.UpdatedAt = now
	}
}

/*
Fail transitions the job to terminal error with the failure surfaced in
the error column, then emits the summary exactly once. A job that went
terminal first (cancel won the race) rejects the write and Fail becomes a
no-op.
*/
func (c *Context) Fail(stage string, jerr types.JobError) {
	now := time.Now()
	raw, _ := json.Marshal(jerr)
	ok, err := c.Jobs.UpdateFieldsUnlessStatus(c.dbc(), c.Job.JobID, types.TerminalStatuses, map[string]any{
		"status":        types.JobStatusError,
		"current_stage": stage,
		"progress":      100,
		"error":         datatypes.JSON(raw),
		"finished_at":   now,
		"updated_at":    now,
	})
	if err != nil {
		c.Log.Error("fail transition errored", "stage", stage, "error", err.Error())
		return
	}
	if !ok {
		return
	}
	c.Job.Status = types.JobStatusError
	c.Job.CurrentStage = stage
	c.Job.Progress = 100
	c.Job.Error = datatypes.JSON(raw)
	c.Job.FinishedAt = &now
	c.Job.UpdatedAt = now

	c.Event(types.EventError, types.EventStageError, map[string]any{
		"stage":   stage,
		"kind":    jerr.Kind,
		"message": jerr.Message,
	})
	c.Event(types.EventInfo, types.EventPipelineSummary, map[string]any{
		"status": types.JobStatusError,
		"stage":  stage,
	})
}

// Complete transitions the job to terminal completed at progress 100 and
// emits the summary event.
func (c *Context) Complete(summary map[string]any) bool {
	now := time.Now()
	ok, err := c.Jobs.UpdateFieldsUnlessStatus(c.dbc(), c.Job.JobID, types.TerminalStatuses, map[string]any{
		"status":        types.JobStatusCompleted,
		"current_stage": types.StageScoring,
		"progress":      100,
		"finished_at":   now,
		"updated_at":    now,
	})
	if err != nil {
		c.Log.Error("complete transition errored", "error", err.Error())
		return false
	}
	if !ok {
		return false
	}
	c.Job.Status = types.JobStatusCompleted
	c.Job.Progress = 100
	c.Job.FinishedAt = &now
	c.Job.UpdatedAt = now

	payload := map[string]any{"status": types.JobStatusCompleted}
	for k, v := range summary {
		payload[k] = v
	}
	c.Event(types.EventInfo, types.EventPipelineSummary, payload)
	return true
}

// Cancelled records the clean cancellation terminal state. The stage is
// whatever was executing when the cancel was observed.
func (c *Context) Cancelled(stage string) {
	now := time.Now()
	ok, err := c.Jobs.UpdateFieldsUnlessStatus(c.dbc(), c.Job.JobID, types.TerminalStatuses, map[string]any{
		"status":        types.JobStatusCancelled,
		"current_stage": stage,
		"progress":      100,
		"finished_at":   now,
		"updated_at":    now,
	})
	if err != nil {
		c.Log.Error("cancel transition errored", "stage", stage, "error", err.Error())
		return
	}
	if !ok {
		return
	}
	c.Job.Status = types.JobStatusCancelled
	c.Job.CurrentStage = stage
	c.Job.Progress = 100
	c.Job.FinishedAt = &now
	c.Job.UpdatedAt = now

	c.Event(types.EventInfo, types.EventPipelineSummary, map[string]any{
		"status": types.JobStatusCancelled,
		"stage":  stage,
	})
}

// UpsertArtifact persists one artifact blob for this job.
func (c *Context) UpsertArtifact(kind string, data any) error {
	return c.Artifacts.Upsert(c.dbc(), c.Job.JobID, kind, data)
}

// Artifact reads one artifact back, nil when absent.
func (c *Context) Artifact(kind string) (*types.PipelineArtifact, error) {
	return c.Artifacts.Get(c.dbc(), c.Job.JobID, kind)
}

// JobID is a convenience for log correlation in pipeline code.
func (c *Context) JobID() uuid.UUID { return c.Job.JobID }
