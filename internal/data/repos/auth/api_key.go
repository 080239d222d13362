package auth

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

// APIKeyRepo resolves presented credentials to principals. Key issuance is
// out of scope; rows are provisioned operationally.
type APIKeyRepo interface {
	GetByHash(dbc dbctx.Context, keyHash string) (*types.APIKey, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.APIKey, error)
}

type apiKeyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAPIKeyRepo(db *gorm.DB, baseLog *logger.Logger) APIKeyRepo {
	return &apiKeyRepo{
		db:  db,
		log: baseLog.With("repo", "APIKeyRepo"),
	}
}

func (r *apiKeyRepo) GetByHash(dbc dbctx.Context, keyHash string) (*types.APIKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if keyHash == "" {
		return nil, nil
	}
	var key types.APIKey
	err := transaction.WithContext(dbc.Ctx).
		Where("key_hash = ? AND revoked_at IS NULL", keyHash).
		Limit(1).
		Find(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == uuid.Nil {
		return nil, nil
	}
	return &key, nil
}

func (r *apiKeyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.APIKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var key types.APIKey
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == uuid.Nil {
		return nil, nil
	}
	return &key, nil
}
