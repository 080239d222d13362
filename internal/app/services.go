package app

import (
	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/admission"
	"github.com/scoutline/scoutline-backend/internal/cleanup"
	"github.com/scoutline/scoutline-backend/internal/jobs/worker"
	"github.com/scoutline/scoutline-backend/internal/pipeline"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
	"github.com/scoutline/scoutline-backend/internal/queue/idempotency"
	"github.com/scoutline/scoutline-backend/internal/queue/ratelimit"
)

type Services struct {
	Admission admission.Service
	Limiter   ratelimit.Limiter
	Idem      idempotency.Store
	Pipeline  *pipeline.Handler
	JobWorker *worker.Worker
	Cleanup   *cleanup.Task
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	idem := idempotency.NewStore(clients.Redis, log)
	limiter := ratelimit.NewLimiter(clients.Redis, log)

	admissionSvc := admission.NewService(
		db, log,
		repos.Jobs, repos.Events, repos.Artifacts,
		idem,
		cfg.MaxActiveJobsPerKey,
	)

	pipelineHandler := pipeline.NewHandler(
		log,
		clients.Embedder,
		clients.Index,
		clients.Enricher,
		clients.Scorer,
		repos.Profiles,
		repos.Calls,
		cfg.CacheTTLDays,
	)

	jobWorker := worker.NewWorker(db, log, repos.Jobs, repos.Events, repos.Artifacts, pipelineHandler)

	cleanupTask := cleanup.NewTask(
		db, log,
		repos.Jobs, repos.Events, repos.Artifacts, repos.Calls, repos.Profiles,
		cfg.JobRetentionDays,
		cfg.CleanupInterval,
	)

	return Services{
		Admission: admissionSvc,
		Limiter:   limiter,
		Idem:      idem,
		Pipeline:  pipelineHandler,
		JobWorker: jobWorker,
		Cleanup:   cleanupTask,
	}
}
