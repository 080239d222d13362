package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/scoutline/scoutline-backend/internal/http/handlers"
	httpMW "github.com/scoutline/scoutline-backend/internal/http/middleware"
	"github.com/scoutline/scoutline-backend/internal/observability"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	Auth      *httpMW.APIKeyAuth
	RateLimit *httpMW.RateLimit
	Metrics   *observability.Metrics

	PipelineHandler *httpH.PipelineHandler
	SearchHandler   *httpH.SearchHandler
	AdminHandler    *httpH.AdminHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics))
	}

	// Health (public)
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}

	protected := r.Group("/")
	protected.Use(cfg.Auth.RequireKey())
	{
		pipeline := protected.Group("/pipeline")
		{
			pipeline.POST("/start", cfg.RateLimit.Limit("pipeline_start"), cfg.PipelineHandler.Start)
			pipeline.GET("/jobs/:id", cfg.PipelineHandler.GetJob)
			pipeline.GET("/jobs/:id/results", cfg.PipelineHandler.GetResults)
			pipeline.GET("/jobs/:id/artifacts/:kind", cfg.PipelineHandler.GetArtifact)
			pipeline.GET("/jobs/:id/events", cfg.PipelineHandler.Events)
			pipeline.POST("/jobs/:id/cancel", cfg.PipelineHandler.Cancel)
		}

		if cfg.SearchHandler != nil {
			protected.POST("/weaviate/search", cfg.RateLimit.Limit("weaviate_search"), cfg.SearchHandler.Search)
		}
	}

	if cfg.AdminHandler != nil {
		admin := r.Group("/admin")
		admin.Use(cfg.AdminHandler.RequireAdmin())
		{
			admin.GET("/usage", cfg.AdminHandler.Usage)
			admin.GET("/jobs", cfg.AdminHandler.Jobs)
		}
	}

	return r
}
