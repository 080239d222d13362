package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
PipelineJobRepo is the single write path for pipeline_jobs rows.
Ownership contract (enforced by callers per spec of the system):
  - The admission service creates rows and may set cancel_requested.
  - The execution engine performs every other mutation after claim.
  - Terminal statuses are write-once: all engine-side updates go through
    UpdateFieldsUnlessStatus with the terminal set as the disallowed list.
The table doubles as the work queue: a pending row is an enqueued job, and
ClaimNextRunnable provides at-least-once delivery with per-job mutual
exclusion via SELECT ... FOR UPDATE SKIP LOCKED.
*/
type PipelineJobRepo interface {
	Create(dbc dbctx.Context, job *types.PipelineJob) (*types.PipelineJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PipelineJob, error)
	GetByIDForKey(dbc dbctx.Context, id uuid.UUID, apiKeyID uuid.UUID) (*types.PipelineJob, error)
	CountActiveForKey(dbc dbctx.Context, apiKeyID uuid.UUID) (int64, error)
	ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.PipelineJob, error)
	Requeue(dbc dbctx.Context, id uuid.UUID, retryAt time.Time) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	RequestCancel(dbc dbctx.Context, id uuid.UUID) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	ListByStatus(dbc dbctx.Context, status string, limit int) ([]*types.PipelineJob, error)
	ListTerminalOlderThan(dbc dbctx.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type pipelineJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPipelineJobRepo(db *gorm.DB, baseLog *logger.Logger) PipelineJobRepo {
	return &pipelineJobRepo{
		db:  db,
		log: baseLog.With("repo", "PipelineJobRepo"),
	}
}

func (r *pipelineJobRepo) Create(dbc dbctx.Context, job *types.PipelineJob) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *pipelineJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.PipelineJob
	err := transaction.WithContext(dbc.Ctx).
		Where("job_id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.JobID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// GetByIDForKey returns nil when the row exists but belongs to another key,
// so a foreign job is indistinguishable from a missing one.
func (r *pipelineJobRepo) GetByIDForKey(dbc dbctx.Context, id uuid.UUID, apiKeyID uuid.UUID) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || apiKeyID == uuid.Nil {
		return nil, nil
	}
	var job types.PipelineJob
	err := transaction.WithContext(dbc.Ctx).
		Where("job_id = ? AND api_key_id = ?", id, apiKeyID).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.JobID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *pipelineJobRepo) CountActiveForKey(dbc dbctx.Context, apiKeyID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if apiKeyID == uuid.Nil {
		return 0, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Where("api_key_id = ? AND status IN ?", apiKeyID, []string{types.JobStatusPending, types.JobStatusRunning}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

/*
ClaimNextRunnable claims the oldest runnable job and transitions it to
running, incrementing attempts. Runnable means:
  - pending and past its retry_at backoff (or never retried), or
  - running with a heartbeat older than staleRunning (worker died).

SKIP LOCKED keeps concurrent workers from claiming the same row.
*/
func (r *pipelineJobRepo) ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.PipelineJob
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.PipelineJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          (status = ? AND (retry_at IS NULL OR retry_at <= ?))
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.JobStatusPending, now, types.JobStatusRunning, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		updates := map[string]interface{}{
			"status":       types.JobStatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"heartbeat_at": now,
			"updated_at":   now,
		}
		if job.StartedAt == nil {
			updates["started_at"] = now
		}
		uErr := txx.Model(&types.PipelineJob{}).
			Where("job_id = ?", job.JobID).
			Updates(updates).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.JobStatusRunning
		job.Attempts++
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Requeue returns a claimed job to pending for queue redelivery, keeping
// terminal rows untouched.
func (r *pipelineJobRepo) Requeue(dbc dbctx.Context, id uuid.UUID, retryAt time.Time) error {
	_, err := r.UpdateFieldsUnlessStatus(dbc, id, types.TerminalStatuses, map[string]interface{}{
		"status":   types.JobStatusPending,
		"retry_at": retryAt,
	})
	return err
}

func (r *pipelineJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Where("job_id = ?", id).
		Updates(updates).Error
}

func (r *pipelineJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Where("job_id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequestCancel sets the soft cancellation flag. Returns false when the job
// is already terminal (cancel is illegal there).
func (r *pipelineJobRepo) RequestCancel(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	return r.UpdateFieldsUnlessStatus(dbc, id, types.TerminalStatuses, map[string]interface{}{
		"cancel_requested": true,
	})
}

func (r *pipelineJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Where("job_id = ? AND status = ?", id, types.JobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *pipelineJobRepo) ListByStatus(dbc dbctx.Context, status string, limit int) ([]*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.PipelineJob{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*types.PipelineJob
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *pipelineJobRepo) ListTerminalOlderThan(dbc dbctx.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 500
	}
	var ids []uuid.UUID
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Where("status IN ? AND finished_at IS NOT NULL AND finished_at < ?", types.TerminalStatuses, cutoff).
		Limit(limit).
		Pluck("job_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *pipelineJobRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("job_id IN ?", ids).
		Delete(&types.PipelineJob{}).Error
}
