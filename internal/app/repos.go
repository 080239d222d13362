package app

import (
	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/data/repos/auth"
	"github.com/scoutline/scoutline-backend/internal/data/repos/cache"
	jobsrepo "github.com/scoutline/scoutline-backend/internal/data/repos/jobs"
	"github.com/scoutline/scoutline-backend/internal/data/repos/ledger"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

type Repos struct {
	Keys      auth.APIKeyRepo
	Jobs      jobsrepo.PipelineJobRepo
	Events    jobsrepo.EventRepo
	Artifacts jobsrepo.ArtifactRepo
	Calls     ledger.ExternalCallRepo
	Profiles  cache.ProfileCacheRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Keys:      auth.NewAPIKeyRepo(db, log),
		Jobs:      jobsrepo.NewPipelineJobRepo(db, log),
		Events:    jobsrepo.NewEventRepo(db, log),
		Artifacts: jobsrepo.NewArtifactRepo(db, log),
		Calls:     ledger.NewExternalCallRepo(db, log),
		Profiles:  cache.NewProfileCacheRepo(db, log),
	}
}
