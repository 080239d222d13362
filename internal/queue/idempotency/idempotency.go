package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
Store maps (principal, client token) to the job it first created. Reserve is
a SETNX race: exactly one caller wins and creates the job, everyone else is
handed the winner's job id and replays it. Entries expire after the
replay window, after which the same token admits a fresh job.
*/
type Store interface {
	// Reserve claims token for jobID. When the token is already held it
	// returns (existing job id, false, nil).
	Reserve(ctx context.Context, apiKeyID uuid.UUID, token string, jobID uuid.UUID) (uuid.UUID, bool, error)
	// Release drops a reservation, used when admission fails after the
	// token was claimed so the client can retry.
	Release(ctx context.Context, apiKeyID uuid.UUID, token string) error
}

const replayWindow = 24 * time.Hour

type store struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewStore(rdb *goredis.Client, baseLog *logger.Logger) Store {
	return &store{
		rdb: rdb,
		log: baseLog.With("service", "IdempotencyStore"),
	}
}

func key(apiKeyID uuid.UUID, token string) string {
	return fmt.Sprintf("idem:%s:%s", apiKeyID, token)
}

func (s *store) Reserve(ctx context.Context, apiKeyID uuid.UUID, token string, jobID uuid.UUID) (uuid.UUID, bool, error) {
	k := key(apiKeyID, token)
	ok, err := s.rdb.SetNX(ctx, k, jobID.String(), replayWindow).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return jobID, true, nil
	}
	raw, err := s.rdb.Get(ctx, k).Result()
	if err == goredis.Nil {
		// Holder expired between SETNX and GET; retry the claim once.
		ok, err = s.rdb.SetNX(ctx, k, jobID.String(), replayWindow).Result()
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("idempotency reserve: %w", err)
		}
		if ok {
			return jobID, true, nil
		}
		raw, err = s.rdb.Get(ctx, k).Result()
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	existing, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency lookup: bad job id %q", raw)
	}
	return existing, false, nil
}

func (s *store) Release(ctx context.Context, apiKeyID uuid.UUID, token string) error {
	return s.rdb.Del(ctx, key(apiKeyID, token)).Err()
}
