package ledger

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

// UsageRow is one line of the admin cost/usage rollup.
type UsageRow struct {
	Service   string  `json:"service"`
	Operation string  `json:"operation"`
	Calls     int64   `json:"calls"`
	CostUSD   float64 `json:"cost_usd"`
}

type ExternalCallRepo interface {
	Record(dbc dbctx.Context, call *types.ExternalCall) error
	SummarizeUsage(dbc dbctx.Context, apiKeyID uuid.UUID, from, to time.Time) ([]UsageRow, error)
	DeleteForJobs(dbc dbctx.Context, jobIDs []uuid.UUID) error
}

type externalCallRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExternalCallRepo(db *gorm.DB, baseLog *logger.Logger) ExternalCallRepo {
	return &externalCallRepo{
		db:  db,
		log: baseLog.With("repo", "ExternalCallRepo"),
	}
}

func (r *externalCallRepo) Record(dbc dbctx.Context, call *types.ExternalCall) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if call == nil {
		return nil
	}
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.Ts.IsZero() {
		call.Ts = time.Now()
	}
	if len(call.Meta) == 0 {
		empty, _ := json.Marshal(map[string]any{})
		call.Meta = datatypes.JSON(empty)
	}
	return transaction.WithContext(dbc.Ctx).Create(call).Error
}

func (r *externalCallRepo) SummarizeUsage(dbc dbctx.Context, apiKeyID uuid.UUID, from, to time.Time) ([]UsageRow, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&types.ExternalCall{}).
		Select("service, operation, COUNT(*) AS calls, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Group("service, operation").
		Order("service, operation")
	if apiKeyID != uuid.Nil {
		q = q.Where("api_key_id = ?", apiKeyID)
	}
	if !from.IsZero() {
		q = q.Where("ts >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("ts < ?", to)
	}
	var rows []UsageRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *externalCallRepo) DeleteForJobs(dbc dbctx.Context, jobIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("job_id IN ?", jobIDs).
		Delete(&types.ExternalCall{}).Error
}
