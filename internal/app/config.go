package app

import (
	"time"

	"github.com/scoutline/scoutline-backend/internal/platform/logger"
	"github.com/scoutline/scoutline-backend/internal/utils"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	MaxActiveJobsPerKey int
	JobRetentionDays    int
	CacheTTLDays        int
	CleanupInterval     time.Duration

	AdminToken  string
	MetricsAddr string
}

func LoadConfig(log *logger.Logger) Config {
	cleanupHours := utils.GetEnvAsInt("CLEANUP_INTERVAL_HOURS", 6, log)
	return Config{
		Port:                utils.GetEnv("PORT", "8080", log),
		Environment:         utils.GetEnv("ENVIRONMENT", "development", log),
		Version:             utils.GetEnv("SERVICE_VERSION", "dev", log),
		MaxActiveJobsPerKey: utils.GetEnvAsInt("MAX_ACTIVE_JOBS_PER_KEY", 3, log),
		JobRetentionDays:    utils.GetEnvAsInt("JOB_RETENTION_DAYS", 7, log),
		CacheTTLDays:        utils.GetEnvAsInt("CACHE_TTL_DAYS", 14, log),
		CleanupInterval:     time.Duration(cleanupHours) * time.Hour,
		AdminToken:          utils.GetEnv("ADMIN_TOKEN", "", log),
		MetricsAddr:         utils.GetEnv("METRICS_ADDR", "", log),
	}
}
