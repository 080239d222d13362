package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/scoutline/scoutline-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Principals
		&types.APIKey{},

		// Pipeline jobs + children
		&types.PipelineJob{},
		&types.PipelineEvent{},
		&types.PipelineArtifact{},

		// Ledger + cache
		&types.ExternalCall{},
		&types.ProfileCacheEntry{},
	)
}

func EnsurePipelineIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}

	// Cursor reads: events with id > after for one job, ascending.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_pipeline_job_events_job_id_id
		ON pipeline_job_events (job_id, id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_pipeline_job_events_job_id_id: %w", err)
	}

	// Claim scans: pending rows in admission order.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_status_created_at
		ON pipeline_jobs (status, created_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_pipeline_jobs_status_created_at: %w", err)
	}

	// Active-cap counts per principal.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_api_key_status
		ON pipeline_jobs (api_key_id, status);
	`).Error; err != nil {
		return fmt.Errorf("create idx_pipeline_jobs_api_key_status: %w", err)
	}

	// Retention sweep.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_profile_cache_expires_at
		ON profile_cache (expires_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_profile_cache_expires_at: %w", err)
	}

	// Usage rollups.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_external_calls_api_key_ts
		ON external_calls (api_key_id, ts);
	`).Error; err != nil {
		return fmt.Errorf("create idx_external_calls_api_key_ts: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsurePipelineIndexes(s.db); err != nil {
		s.log.Error("Pipeline index migration failed", "error", err)
		return err
	}
	return nil
}
