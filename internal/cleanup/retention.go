package cleanup

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/data/repos/cache"
	jobsrepo "github.com/scoutline/scoutline-backend/internal/data/repos/jobs"
	"github.com/scoutline/scoutline-backend/internal/data/repos/ledger"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

// sweepBatch bounds how many terminal jobs one sweep round deletes so a
// backlog never holds a transaction open across thousands of rows.
const sweepBatch = 500

/*
Task prunes terminal jobs past the retention window along with their
events, artifacts, and ledger rows, and evicts expired profile cache
entries. One sweep runs at startup and then on every tick; sweeps are
idempotent, so overlapping deployments sharing a database are safe.
*/
type Task struct {
	db       *gorm.DB
	log      *logger.Logger
	jobs     jobsrepo.PipelineJobRepo
	events   jobsrepo.EventRepo
	arts     jobsrepo.ArtifactRepo
	calls    ledger.ExternalCallRepo
	profiles cache.ProfileCacheRepo

	retention time.Duration
	interval  time.Duration
}

func NewTask(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs jobsrepo.PipelineJobRepo,
	events jobsrepo.EventRepo,
	arts jobsrepo.ArtifactRepo,
	calls ledger.ExternalCallRepo,
	profiles cache.ProfileCacheRepo,
	retentionDays int,
	interval time.Duration,
) *Task {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Task{
		db:        db,
		log:       baseLog.With("component", "Cleanup"),
		jobs:      jobs,
		events:    events,
		arts:      arts,
		calls:     calls,
		profiles:  profiles,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
	}
}

func (t *Task) Start(ctx context.Context) {
	go func() {
		t.log.Info("starting retention sweeper",
			"retention", t.retention.String(),
			"interval", t.interval.String(),
		)
		t.sweep(ctx)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.log.Info("retention sweeper stopped")
				return
			case <-ticker.C:
				t.sweep(ctx)
			}
		}
	}()
}

func (t *Task) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-t.retention)

	removed := 0
	for {
		n, err := t.sweepJobsOnce(ctx, cutoff)
		if err != nil {
			t.log.Warn("job retention sweep failed", "error", err.Error())
			break
		}
		removed += n
		if n < sweepBatch {
			break
		}
	}

	evicted, err := t.profiles.DeleteExpired(dbctx.Context{Ctx: ctx}, time.Now())
	if err != nil {
		t.log.Warn("profile cache eviction failed", "error", err.Error())
	}

	if removed > 0 || evicted > 0 {
		t.log.Info("retention sweep done",
			"jobs_removed", removed,
			"cache_evicted", evicted,
		)
	}
}

// sweepJobsOnce deletes one batch of expired terminal jobs and their
// dependents inside a single transaction, so a crash mid-delete never
// leaves orphaned events or artifacts behind.
func (t *Task) sweepJobsOnce(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := t.jobs.ListTerminalOlderThan(dbctx.Context{Ctx: ctx}, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := t.events.DeleteForJobs(dbc, ids); err != nil {
			return err
		}
		if err := t.arts.DeleteForJobs(dbc, ids); err != nil {
			return err
		}
		if err := t.calls.DeleteForJobs(dbc, ids); err != nil {
			return err
		}
		return t.jobs.DeleteByIDs(dbc, ids)
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
