package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
EventRepo appends to and reads from the per-job event log. Rows are never
mutated after insert; the bigserial id is the streaming cursor, so readers
polling with id > after see a prefix-consistent, ascending view.
*/
type EventRepo interface {
	Append(dbc dbctx.Context, jobID uuid.UUID, level string, eventType string, payload any) (*types.PipelineEvent, error)
	ListAfter(dbc dbctx.Context, jobID uuid.UUID, after int64, limit int) ([]*types.PipelineEvent, error)
	DeleteForJobs(dbc dbctx.Context, jobIDs []uuid.UUID) error
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{
		db:  db,
		log: baseLog.With("repo", "EventRepo"),
	}
}

func (r *eventRepo) Append(dbc dbctx.Context, jobID uuid.UUID, level string, eventType string, payload any) (*types.PipelineEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil, nil
	}
	var data datatypes.JSON
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = datatypes.JSON(b)
	}
	ev := &types.PipelineEvent{
		JobID: jobID,
		Ts:    time.Now(),
		Level: level,
		Type:  eventType,
		Data:  data,
	}
	if err := transaction.WithContext(dbc.Ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *eventRepo) ListAfter(dbc dbctx.Context, jobID uuid.UUID, after int64, limit int) ([]*types.PipelineEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	var out []*types.PipelineEvent
	err := transaction.WithContext(dbc.Ctx).
		Where("job_id = ? AND id > ?", jobID, after).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *eventRepo) DeleteForJobs(dbc dbctx.Context, jobIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("job_id IN ?", jobIDs).
		Delete(&types.PipelineEvent{}).Error
}
