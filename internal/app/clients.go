package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/scoutline/scoutline-backend/internal/external/embeddings"
	"github.com/scoutline/scoutline-backend/internal/external/enrichment"
	"github.com/scoutline/scoutline-backend/internal/external/scoring"
	"github.com/scoutline/scoutline-backend/internal/external/vectorindex"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
	"github.com/scoutline/scoutline-backend/internal/queue"
)

type Clients struct {
	Redis    *goredis.Client
	Embedder embeddings.Embedder
	Index    vectorindex.Index
	Enricher enrichment.Provider
	Scorer   scoring.Scorer
}

func wireClients(log *logger.Logger) (Clients, error) {
	rdb, err := queue.NewRedis(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	embedder, err := embeddings.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init embedder: %w", err)
	}
	index, err := vectorindex.NewWeaviateIndex(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init vector index: %w", err)
	}
	enricher, err := enrichment.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init enrichment client: %w", err)
	}
	scorer, err := scoring.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init scoring client: %w", err)
	}
	return Clients{
		Redis:    rdb,
		Embedder: embedder,
		Index:    index,
		Enricher: enricher,
		Scorer:   scorer,
	}, nil
}
