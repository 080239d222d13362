package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/admission"
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/http/middleware"
	"github.com/scoutline/scoutline-backend/internal/http/response"
	"github.com/scoutline/scoutline-backend/internal/platform/ctxutil"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

// PipelineHandler is the job lifecycle surface: submit, inspect, stream,
// cancel. All routes sit behind API-key auth; ownership is enforced by the
// admission service.
type PipelineHandler struct {
	log       *logger.Logger
	admission admission.Service
}

func NewPipelineHandler(baseLog *logger.Logger, svc admission.Service) *PipelineHandler {
	return &PipelineHandler{
		log:       baseLog.With("handler", "PipelineHandler"),
		admission: svc,
	}
}

// POST /pipeline/start
func (h *PipelineHandler) Start(c *gin.Context) {
	key, ok := middleware.APIKeyFrom(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "auth", nil)
		return
	}
	var req admission.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	idemToken := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	result, err := h.admission.Submit(dbctx.Context{Ctx: c.Request.Context()}, key, req, idemToken)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	var requestID string
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		requestID = td.RequestID
	}
	response.RespondAccepted(c, gin.H{
		"job_id":     result.JobID,
		"status":     "accepted",
		"request_id": requestID,
	})
}

// GET /pipeline/jobs/:id
func (h *PipelineHandler) GetJob(c *gin.Context) {
	key, jobID, ok := h.keyAndJobID(c)
	if !ok {
		return
	}
	job, err := h.admission.GetJob(dbctx.Context{Ctx: c.Request.Context()}, key, jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, jobProjection(job))
}

// GET /pipeline/jobs/:id/results
func (h *PipelineHandler) GetResults(c *gin.Context) {
	key, jobID, ok := h.keyAndJobID(c)
	if !ok {
		return
	}
	art, err := h.admission.GetResults(dbctx.Context{Ctx: c.Request.Context()}, key, jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", art.Data)
}

// GET /pipeline/jobs/:id/artifacts/:kind
func (h *PipelineHandler) GetArtifact(c *gin.Context) {
	key, jobID, ok := h.keyAndJobID(c)
	if !ok {
		return
	}
	kind := c.Param("kind")
	art, err := h.admission.GetArtifact(dbctx.Context{Ctx: c.Request.Context()}, key, jobID, kind)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", art.Data)
}

// GET /pipeline/jobs/:id/events?after=N&format=json|sse
func (h *PipelineHandler) Events(c *gin.Context) {
	key, jobID, ok := h.keyAndJobID(c)
	if !ok {
		return
	}
	after, err := eventCursor(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}

	if wantsSSE(c) {
		h.streamEvents(c, key, jobID, after)
		return
	}

	limit := eventChunkSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= eventChunkSize {
			limit = n
		}
	}
	events, err := h.admission.ListEvents(dbctx.Context{Ctx: c.Request.Context()}, key, jobID, after, limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"events": events})
}

// POST /pipeline/jobs/:id/cancel
func (h *PipelineHandler) Cancel(c *gin.Context) {
	key, jobID, ok := h.keyAndJobID(c)
	if !ok {
		return
	}
	if err := h.admission.Cancel(dbctx.Context{Ctx: c.Request.Context()}, key, jobID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job_id": jobID, "cancel_requested": true})
}

func (h *PipelineHandler) keyAndJobID(c *gin.Context) (*types.APIKey, uuid.UUID, bool) {
	key, ok := middleware.APIKeyFrom(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "auth", nil)
		return nil, uuid.Nil, false
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return nil, uuid.Nil, false
	}
	return key, jobID, true
}

// jobProjection is the public job shape; params ride along verbatim,
// internal scheduling columns stay private.
func jobProjection(job *types.PipelineJob) gin.H {
	out := gin.H{
		"job_id":           job.JobID,
		"status":           job.Status,
		"current_stage":    job.CurrentStage,
		"progress":         job.Progress,
		"cancel_requested": job.CancelRequested,
		"created_at":       job.CreatedAt,
		"started_at":       job.StartedAt,
		"finished_at":      job.FinishedAt,
	}
	if len(job.Params) > 0 {
		out["params"] = json.RawMessage(job.Params)
	}
	if len(job.Meta) > 0 {
		out["meta"] = json.RawMessage(job.Meta)
	}
	if len(job.Error) > 0 {
		out["error"] = json.RawMessage(job.Error)
	}
	return out
}

func wantsSSE(c *gin.Context) bool {
	if c.Query("format") == "sse" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}
