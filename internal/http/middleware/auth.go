package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scoutline/scoutline-backend/internal/data/repos/auth"
	types "github.com/scoutline/scoutline-backend/internal/domain"
	"github.com/scoutline/scoutline-backend/internal/http/response"
	"github.com/scoutline/scoutline-backend/internal/platform/apierr"
	"github.com/scoutline/scoutline-backend/internal/platform/ctxutil"
	"github.com/scoutline/scoutline-backend/internal/platform/dbctx"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

const apiKeyContextKey = "api_key"

/*
APIKeyAuth resolves the presented credential to an api_keys row. Keys are
stored as SHA-256 hashes; the plaintext never touches the database or the
logs. A revoked or unknown key is a plain 401 with no detail.
*/
type APIKeyAuth struct {
	log  *logger.Logger
	keys auth.APIKeyRepo
}

func NewAPIKeyAuth(baseLog *logger.Logger, keys auth.APIKeyRepo) *APIKeyAuth {
	return &APIKeyAuth{
		log:  baseLog.With("Middleware", "APIKeyAuth"),
		keys: keys,
	}
}

func (am *APIKeyAuth) RequireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := extractAPIKey(c)
		if presented == "" {
			response.RespondError(c, http.StatusUnauthorized, apierr.CodeAuth, errors.New("missing credentials"))
			c.Abort()
			return
		}
		sum := sha256.Sum256([]byte(presented))
		key, err := am.keys.GetByHash(dbctx.Context{Ctx: c.Request.Context()}, hex.EncodeToString(sum[:]))
		if err != nil {
			am.log.Error("api key lookup failed", "error", err.Error())
			response.RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, errors.New("internal error"))
			c.Abort()
			return
		}
		if key == nil {
			response.RespondError(c, http.StatusUnauthorized, apierr.CodeAuth, errors.New("invalid credentials"))
			c.Abort()
			return
		}
		c.Set(apiKeyContextKey, key)
		c.Request = c.Request.WithContext(ctxutil.WithPrincipal(c.Request.Context(), key.ID))
		c.Next()
	}
}

// APIKeyFrom returns the authenticated principal attached by RequireKey.
func APIKeyFrom(c *gin.Context) (*types.APIKey, bool) {
	v, ok := c.Get(apiKeyContextKey)
	if !ok {
		return nil, false
	}
	key, ok := v.(*types.APIKey)
	return key, ok
}

func extractAPIKey(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("Authorization")); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	return strings.TrimSpace(c.GetHeader("X-API-Key"))
}
