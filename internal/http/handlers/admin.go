package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jobsrepo "github.com/scoutline/scoutline-backend/internal/data/repos/jobs"
	"github.com/scoutline/scoutline-backend/internal/data/repos/ledger"
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/http/response"
	"github.com/scoutline/scoutline-backend/internal/platform/apierr"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

const adminJobsLimit = 100

/*
AdminHandler serves the operational read views: cost/usage rollups from
the external-call ledger and job triage by status. It is guarded by a
dedicated admin token, not by tenant API keys, so it can see across
principals.
*/
type AdminHandler struct {
	log        *logger.Logger
	jobs       jobsrepo.PipelineJobRepo
	calls      ledger.ExternalCallRepo
	adminToken string
}

func NewAdminHandler(baseLog *logger.Logger, jobs jobsrepo.PipelineJobRepo, calls ledger.ExternalCallRepo, adminToken string) *AdminHandler {
	return &AdminHandler{
		log:        baseLog.With("handler", "AdminHandler"),
		jobs:       jobs,
		calls:      calls,
		adminToken: adminToken,
	}
}

// RequireAdmin rejects unless the request bears the configured admin
// token. With no token configured the admin surface is disabled outright.
func (h *AdminHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if h.adminToken == "" || presented == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(h.adminToken)) != 1 {
			response.RespondError(c, http.StatusUnauthorized, apierr.CodeAuth, errors.New("invalid credentials"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GET /admin/usage?api_key_id=&from=&to=
func (h *AdminHandler) Usage(c *gin.Context) {
	apiKeyID, err := uuid.Parse(c.Query("api_key_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeValidation,
			fmt.Errorf("api_key_id is required: %w", err))
		return
	}

	to := time.Now()
	from := to.AddDate(0, -1, 0)
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			response.RespondError(c, http.StatusBadRequest, apierr.CodeValidation,
				fmt.Errorf("invalid from timestamp %q", raw))
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			response.RespondError(c, http.StatusBadRequest, apierr.CodeValidation,
				fmt.Errorf("invalid to timestamp %q", raw))
			return
		}
	}

	rows, err := h.calls.SummarizeUsage(dbctx.Context{Ctx: c.Request.Context()}, apiKeyID, from, to)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var total float64
	for _, row := range rows {
		total += row.CostUSD
	}
	response.RespondOK(c, gin.H{
		"api_key_id":     apiKeyID,
		"from":           from.UTC().Format(time.RFC3339),
		"to":             to.UTC().Format(time.RFC3339),
		"usage":          rows,
		"total_cost_usd": total,
	})
}

// GET /admin/jobs?status=
func (h *AdminHandler) Jobs(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	switch status {
	case types.JobStatusPending, types.JobStatusRunning, types.JobStatusCompleted,
		types.JobStatusError, types.JobStatusCancelled:
	default:
		response.RespondError(c, http.StatusBadRequest, apierr.CodeValidation,
			fmt.Errorf("status must be one of pending, running, completed, error, cancelled"))
		return
	}

	jobs, err := h.jobs.ListByStatus(dbctx.Context{Ctx: c.Request.Context()}, status, adminJobsLimit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs, "count": len(jobs)})
}
