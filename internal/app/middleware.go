package app

import (
	httpMW "github.com/scoutline/scoutline-backend/internal/http/middleware"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

type Middleware struct {
	Auth      *httpMW.APIKeyAuth
	RateLimit *httpMW.RateLimit
}

func wireMiddleware(log *logger.Logger, repos Repos, services Services) Middleware {
	return Middleware{
		Auth:      httpMW.NewAPIKeyAuth(log, repos.Keys),
		RateLimit: httpMW.NewRateLimit(log, services.Limiter),
	}
}
