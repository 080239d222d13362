package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
ArtifactRepo upserts and reads per-job artifact blobs. Upserts are
idempotent on (job_id, kind): at most one row per pair, updated_at
non-decreasing. The execution engine is the only writer.
*/
type ArtifactRepo interface {
	Upsert(dbc dbctx.Context, jobID uuid.UUID, kind string, data any) error
	Get(dbc dbctx.Context, jobID uuid.UUID, kind string) (*types.PipelineArtifact, error)
	ListBatches(dbc dbctx.Context, jobID uuid.UUID) ([]*types.PipelineArtifact, error)
	DeleteForJobs(dbc dbctx.Context, jobIDs []uuid.UUID) error
}

type artifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{
		db:  db,
		log: baseLog.With("repo", "ArtifactRepo"),
	}
}

func (r *artifactRepo) Upsert(dbc dbctx.Context, jobID uuid.UUID, kind string, data any) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil || kind == "" {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	row := &types.PipelineArtifact{
		JobID:     jobID,
		Kind:      kind,
		Data:      datatypes.JSON(raw),
		UpdatedAt: time.Now(),
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(row).Error
}

func (r *artifactRepo) Get(dbc dbctx.Context, jobID uuid.UUID, kind string) (*types.PipelineArtifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil || kind == "" {
		return nil, nil
	}
	var row types.PipelineArtifact
	err := transaction.WithContext(dbc.Ctx).
		Where("job_id = ? AND kind = ?", jobID, kind).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.JobID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// ListBatches returns every batch:N artifact for a job, ordered by batch
// index so merges are deterministic.
func (r *artifactRepo) ListBatches(dbc dbctx.Context, jobID uuid.UUID) ([]*types.PipelineArtifact, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil, nil
	}
	var out []*types.PipelineArtifact
	err := transaction.WithContext(dbc.Ctx).
		Where("job_id = ? AND kind LIKE ?", jobID, "batch:%").
		Order("length(kind) ASC, kind ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) DeleteForJobs(dbc dbctx.Context, jobIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("job_id IN ?", jobIDs).
		Delete(&types.PipelineArtifact{}).Error
}
