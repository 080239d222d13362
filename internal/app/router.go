package app

import (
	httpRouter "github.com/scoutline/scoutline-backend/internal/http"
	"github.com/scoutline/scoutline-backend/internal/observability"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *httpRouter.Server {
	return httpRouter.NewServer(httpRouter.RouterConfig{
		Log:             log,
		Auth:            middleware.Auth,
		RateLimit:       middleware.RateLimit,
		Metrics:         metrics,
		PipelineHandler: handlers.Pipeline,
		SearchHandler:   handlers.Search,
		AdminHandler:    handlers.Admin,
		HealthHandler:   handlers.Health,
	})
}
