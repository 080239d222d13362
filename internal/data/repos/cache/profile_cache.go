package cache

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
ProfileCacheRepo is the TTL cache over enriched profile payloads. Reads
filter expired rows; writes upsert last-writer-wins on the cache key. The
cache is shared-read across jobs with no per-row exclusion requirement.
*/
type ProfileCacheRepo interface {
	BulkGet(dbc dbctx.Context, keys []string) (map[string]*types.ProfileCacheEntry, error)
	Put(dbc dbctx.Context, entries []*types.ProfileCacheEntry) error
	DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error)
}

type profileCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileCacheRepo(db *gorm.DB, baseLog *logger.Logger) ProfileCacheRepo {
	return &profileCacheRepo{
		db:  db,
		log: baseLog.With("repo", "ProfileCacheRepo"),
	}
}

func (r *profileCacheRepo) BulkGet(dbc dbctx.Context, keys []string) (map[string]*types.ProfileCacheEntry, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[string]*types.ProfileCacheEntry, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []*types.ProfileCacheEntry
	err := transaction.WithContext(dbc.Ctx).
		Where("cache_key IN ? AND expires_at > ?", keys, time.Now()).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.CacheKey] = row
	}
	return out, nil
}

func (r *profileCacheRepo) Put(dbc dbctx.Context, entries []*types.ProfileCacheEntry) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	for _, e := range entries {
		if e.CachedAt.IsZero() {
			e.CachedAt = now
		}
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"normalized_url", "platform", "raw_data", "cached_at", "expires_at"}),
		}).
		Create(&entries).Error
}

func (r *profileCacheRepo) DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Where("expires_at <= ?", now).
		Delete(&types.ProfileCacheEntry{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
