package admission

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobsrepo "github.com/scoutline/scoutline-backend/internal/data/repos/jobs"
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/platform/apierr"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
	"github.com/scoutline/scoutline-backend/internal/queue/idempotency"
)

/*
Service is the synchronous admission layer: it owns job creation and every
read the HTTP surface serves. Jobs it creates start pending and are never
mutated here again except for the cancel_requested flag; everything else
belongs to the worker.
*/
type Service interface {
	Submit(dbc dbctx.Context, key *types.APIKey, req SubmitRequest, idemToken string) (*SubmitResult, error)
	GetJob(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID) (*types.PipelineJob, error)
	GetResults(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID) (*types.PipelineArtifact, error)
	GetArtifact(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID, kind string) (*types.PipelineArtifact, error)
	ListEvents(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID, after int64, limit int) ([]*types.PipelineEvent, error)
	Cancel(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID) error
}

type SubmitResult struct {
	JobID uuid.UUID
	// Replayed is set when an idempotency token matched a prior submit and
	// JobID is that earlier job.
	Replayed bool
}

type service struct {
	db        *gorm.DB
	log       *logger.Logger
	jobs      jobsrepo.PipelineJobRepo
	events    jobsrepo.EventRepo
	artifacts jobsrepo.ArtifactRepo
	idem      idempotency.Store

	maxActiveDefault int
}

func NewService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs jobsrepo.PipelineJobRepo,
	events jobsrepo.EventRepo,
	artifacts jobsrepo.ArtifactRepo,
	idem idempotency.Store,
	maxActiveDefault int,
) Service {
	if maxActiveDefault <= 0 {
		maxActiveDefault = 3
	}
	return &service{
		db:               db,
		log:              baseLog.With("service", "AdmissionService"),
		jobs:             jobs,
		events:           events,
		artifacts:        artifacts,
		idem:             idem,
		maxActiveDefault: maxActiveDefault,
	}
}

func (s *service) Submit(dbc dbctx.Context, key *types.APIKey, req SubmitRequest, idemToken string) (*SubmitResult, error) {
	params, err := req.validate()
	if err != nil {
		return nil, err
	}
	if len(idemToken) > maxIdempotencyKeyLen {
		return nil, apierr.Validation(fmt.Errorf("idempotency key exceeds %d characters", maxIdempotencyKeyLen))
	}

	jobID := uuid.New()
	if idemToken != "" {
		existing, reserved, err := s.idem.Reserve(dbc.Ctx, key.ID, idemToken, jobID)
		if err != nil {
			return nil, err
		}
		if !reserved {
			return &SubmitResult{JobID: existing, Replayed: true}, nil
		}
	}

	limit := key.ActiveJobCap
	if limit <= 0 {
		limit = s.maxActiveDefault
	}
	active, err := s.jobs.CountActiveForKey(dbc, key.ID)
	if err != nil {
		s.releaseReservation(dbc, key.ID, idemToken)
		return nil, err
	}
	if active >= int64(limit) {
		s.releaseReservation(dbc, key.ID, idemToken)
		return nil, apierr.New(http.StatusTooManyRequests, apierr.CodeOverCap,
			fmt.Errorf("active job cap reached (%d)", limit))
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		s.releaseReservation(dbc, key.ID, idemToken)
		return nil, err
	}
	now := time.Now()
	job := &types.PipelineJob{
		JobID:        jobID,
		APIKeyID:     key.ID,
		Status:       types.JobStatusPending,
		CurrentStage: types.StageNone,
		Params:       datatypes.JSON(paramsJSON),
		Meta:         datatypes.JSON([]byte(`{}`)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.jobs.Create(dbc, job); err != nil {
		s.releaseReservation(dbc, key.ID, idemToken)
		return nil, err
	}

	if _, err := s.events.Append(dbc, job.JobID, types.EventInfo, types.EventJobAccepted, map[string]any{
		"top_n":        params.TopN,
		"llm_top_n":    params.LLMTopN,
		"platform":     params.Platform,
		"strict_match": params.StrictLocationMatching,
	}); err != nil {
		s.log.Warn("job_accepted event append failed",
			"job_id", job.JobID.String(),
			"error", err.Error(),
		)
	}

	return &SubmitResult{JobID: job.JobID}, nil
}

// releaseReservation drops a placeholder idempotency mapping when the
// submit it guarded did not produce a job.
func (s *service) releaseReservation(dbc dbctx.Context, apiKeyID uuid.UUID, token string) {
	if token == "" {
		return
	}
	if err := s.idem.Release(dbc.Ctx, apiKeyID, token); err != nil {
		s.log.Warn("idempotency release failed", "error", err.Error())
	}
}

// ownedJob resolves a job for the caller. A job owned by a different key
// is reported as not found.
func (s *service) ownedJob(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID) (*types.PipelineJob, error) {
	job, err := s.jobs.GetByIDForKey(dbc, jobID, key.ID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apierr.NotFound(fmt.Errorf("job not found"))
	}
	return job, nil
}

func (s *service) GetJob(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID) (*types.PipelineJob, error) {
	return s.ownedJob(dbc, key, jobID)
}

func (s *service) GetResults(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID) (*types.PipelineArtifact, error) {
	job, err := s.ownedJob(dbc, key, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusCompleted {
		return nil, apierr.Conflict(apierr.CodeNotCompleted,
			fmt.Errorf("job status is %s", job.Status))
	}
	art, err := s.artifacts.Get(dbc, jobID, types.ArtifactFinal)
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, apierr.NotFound(fmt.Errorf("final artifact missing"))
	}
	return art, nil
}

func (s *service) GetArtifact(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID, kind string) (*types.PipelineArtifact, error) {
	if !types.PublicArtifactKind(kind) {
		return nil, apierr.Validation(fmt.Errorf("unknown artifact kind %q", kind))
	}
	if _, err := s.ownedJob(dbc, key, jobID); err != nil {
		return nil, err
	}
	art, err := s.artifacts.Get(dbc, jobID, kind)
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, apierr.NotFound(fmt.Errorf("artifact %q not found", kind))
	}
	return art, nil
}

func (s *service) ListEvents(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID, after int64, limit int) ([]*types.PipelineEvent, error) {
	if _, err := s.ownedJob(dbc, key, jobID); err != nil {
		return nil, err
	}
	return s.events.ListAfter(dbc, jobID, after, limit)
}

func (s *service) Cancel(dbc dbctx.Context, key *types.APIKey, jobID uuid.UUID) error {
	job, err := s.ownedJob(dbc, key, jobID)
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		return apierr.Conflict(apierr.CodeConflict,
			fmt.Errorf("job already %s", job.Status))
	}
	applied, err := s.jobs.RequestCancel(dbc, jobID)
	if err != nil {
		return err
	}
	if !applied {
		// Lost the race against a terminal transition.
		return apierr.Conflict(apierr.CodeConflict, fmt.Errorf("job already terminal"))
	}
	if _, err := s.events.Append(dbc, jobID, types.EventInfo, types.EventCancelRequested, map[string]any{
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.log.Warn("cancel_requested event append failed",
			"job_id", jobID.String(),
			"error", err.Error(),
		)
	}
	return nil
}
