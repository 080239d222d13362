package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/external/vectorindex"
)

// HealthHandler reports liveness plus a per-dependency breakdown so a 503
// names the degraded component.
type HealthHandler struct {
	db    *gorm.DB
	redis *goredis.Client
	index vectorindex.Index
}

func NewHealthHandler(db *gorm.DB, rdb *goredis.Client, index vectorindex.Index) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, index: index}
}

// GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{}
	healthy := true

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = err.Error()
		healthy = false
	}
	checks["database"] = dbStatus

	redisStatus := "ok"
	if err := h.redis.Ping(ctx).Err(); err != nil {
		redisStatus = err.Error()
		healthy = false
	}
	checks["redis"] = redisStatus

	indexStatus := "ok"
	if err := h.index.Ready(ctx); err != nil {
		indexStatus = err.Error()
		healthy = false
	}
	checks["vector_index"] = indexStatus

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status": overall,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
	})
}
