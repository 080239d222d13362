package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scoutline/scoutline-backend/internal/external/embeddings"
	"github.com/scoutline/scoutline-backend/internal/external/vectorindex"
	"github.com/scoutline/scoutline-backend/internal/http/response"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

const (
	searchDefaultLimit = 50
	searchMaxLimit     = 500
)

// SearchHandler exposes a direct hybrid query against the vector index,
// with the same filter semantics the pipeline's search stage applies.
type SearchHandler struct {
	log      *logger.Logger
	embedder embeddings.Embedder
	index    vectorindex.Index
}

func NewSearchHandler(baseLog *logger.Logger, embedder embeddings.Embedder, index vectorindex.Index) *SearchHandler {
	return &SearchHandler{
		log:      baseLog.With("handler", "SearchHandler"),
		embedder: embedder,
		index:    index,
	}
}

type searchRequest struct {
	Query        string  `json:"query"`
	Platform     string  `json:"platform"`
	MinFollowers int     `json:"min_followers"`
	MaxFollowers int     `json:"max_followers"`
	Limit        int     `json:"limit"`
	Alpha        float64 `json:"alpha"`
}

// POST /weaviate/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		response.RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("query is required"))
		return
	}
	if req.Limit <= 0 {
		req.Limit = searchDefaultLimit
	}
	if req.Limit > searchMaxLimit {
		req.Limit = searchMaxLimit
	}
	if req.Alpha <= 0 || req.Alpha > 1 {
		req.Alpha = 0.5
	}

	ctx := c.Request.Context()
	vectors, err := h.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "upstream", err)
		return
	}

	rows, err := h.index.HybridSearch(ctx, vectorindex.HybridQuery{
		Query:        req.Query,
		Vector:       vectors[0],
		Alpha:        req.Alpha,
		Limit:        req.Limit,
		Platform:     strings.ToLower(req.Platform),
		MinFollowers: req.MinFollowers,
		MaxFollowers: req.MaxFollowers,
	})
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "upstream", err)
		return
	}
	response.RespondOK(c, gin.H{"candidates": rows, "count": len(rows)})
}
