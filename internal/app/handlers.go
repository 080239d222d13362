package app

import (
	"gorm.io/gorm"

	httpH "github.com/scoutline/scoutline-backend/internal/http/handlers"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

type Handlers struct {
	Pipeline *httpH.PipelineHandler
	Search   *httpH.SearchHandler
	Admin    *httpH.AdminHandler
	Health   *httpH.HealthHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, services Services) Handlers {
	return Handlers{
		Pipeline: httpH.NewPipelineHandler(log, services.Admission),
		Search:   httpH.NewSearchHandler(log, clients.Embedder, clients.Index),
		Admin:    httpH.NewAdminHandler(log, repos.Jobs, repos.Calls, cfg.AdminToken),
		Health:   httpH.NewHealthHandler(db, clients.Redis, clients.Index),
	}
}
