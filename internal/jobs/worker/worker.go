package worker

import (
	"context"
	"time"

	"gorm.io/gorm"

	jobsrepo "github.com/scoutline/scoutline-backend/internal/data/repos/jobs"
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/jobs/runtime"
	"github.com/scoutline/scoutline-backend/internal/observability"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
	"github.com/scoutline/scoutline-backend/internal/utils"
)

const (
	maxAttempts      = 3
	retryBackoffBase = 5 * time.Second
	staleRunning     = 5 * time.Minute
	heartbeatEvery   = 30 * time.Second
)

/*
Worker polls the job queue and executes claimed jobs through the pipeline
handler. Several worker processes may share the queue; the claim query's
row lock guarantees one executor per job. Redelivery happens two ways: an
explicit Requeue with backoff when a run returns an error, and the stale-
running reclaim when a worker dies without releasing its claim.
*/
type Worker struct {
	db      *gorm.DB
	log     *logger.Logger
	jobs    jobsrepo.PipelineJobRepo
	events  jobsrepo.EventRepo
	arts    jobsrepo.ArtifactRepo
	handler runtime.Handler
}

func NewWorker(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs jobsrepo.PipelineJobRepo,
	events jobsrepo.EventRepo,
	arts jobsrepo.ArtifactRepo,
	handler runtime.Handler,
) *Worker {
	return &Worker{
		db:      db,
		log:     baseLog.With("component", "JobWorker"),
		jobs:    jobs,
		events:  events,
		arts:    arts,
		handler: handler,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, w.log)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("starting job worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.jobs.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, staleRunning)
			if err != nil {
				w.log.Warn("claim failed", "worker_id", workerID, "error", err.Error())
				continue
			}
			if job == nil {
				continue
			}
			w.execute(ctx, workerID, job)
		}
	}
}

func (w *Worker) execute(ctx context.Context, workerID int, job *types.PipelineJob) {
	jc := runtime.NewContext(ctx, w.db, job, w.jobs, w.events, w.arts, w.log)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		t := time.NewTicker(heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				jc.Heartbeat()
			}
		}
	}()

	start := time.Now()
	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("job handler panic",
					"worker_id", workerID,
					"job_id", job.JobID,
					"panic", r,
				)
				runErr = &panicError{}
			}
		}()
		runErr = w.handler.Run(jc)
	}()
	stopHeartbeat()

	status := "completed"
	if runErr != nil {
		status = "error"
	}
	observability.Current().ObserveJob(status, time.Since(start))

	if runErr == nil {
		return
	}

	// Attempts was already incremented by the claim. Past the budget this
	// becomes a terminal error; otherwise requeue with exponential backoff.
	if job.Attempts >= maxAttempts {
		jc.Fail(job.CurrentStage, types.JobError{
			Kind:    "fatal",
			Stage:   job.CurrentStage,
			Message: "retries exhausted: " + runErr.Error(),
		})
		return
	}

	backoff := retryBackoffBase << (job.Attempts - 1)
	retryAt := time.Now().Add(backoff)
	if err := w.jobs.Requeue(dbctx.Context{Ctx: ctx}, job.JobID, retryAt); err != nil {
		w.log.Error("requeue failed",
			"worker_id", workerID,
			"job_id", job.JobID,
			"error", err.Error(),
		)
		return
	}
	w.log.Warn("job requeued",
		"worker_id", workerID,
		"job_id", job.JobID,
		"attempts", job.Attempts,
		"retry_in", backoff.String(),
		"error", runErr.Error(),
	)
}

type panicError struct{}

func (e *panicError) Error() string { return "panic during job execution" }
