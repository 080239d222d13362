package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scoutline/scoutline-backend/internal/http/response"
	"github.com/scoutline/scoutline-backend/internal/platform/apierr"
	"github.com/scoutline/scoutline-backend/internal/platform/logger"
	"github.com/scoutline/scoutline-backend/internal/queue/ratelimit"
)

/*
RateLimit applies the per-principal token bucket to a route group. The
bucket key is (scope, api key id) so a chatty principal never starves the
others. A limiter backend failure lets the request through with a warning
rather than turning a Redis blip into an outage.
*/
type RateLimit struct {
	log     *logger.Logger
	limiter ratelimit.Limiter
}

func NewRateLimit(baseLog *logger.Logger, limiter ratelimit.Limiter) *RateLimit {
	return &RateLimit{
		log:     baseLog.With("Middleware", "RateLimit"),
		limiter: limiter,
	}
}

func (rl *RateLimit) Limit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := APIKeyFrom(c)
		if !ok {
			c.Next()
			return
		}
		decision, err := rl.limiter.Allow(c.Request.Context(), scope+":"+key.ID.String(), key.RateRPS, key.Burst)
		if err != nil {
			rl.log.Warn("rate limiter unavailable; allowing request",
				"scope", scope,
				"error", err.Error(),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Scope", scope)
		if decision.Remaining >= 0 {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}
		if !decision.Allowed {
			if decision.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			}
			response.RespondError(c, http.StatusTooManyRequests, apierr.CodeRateLimited, errors.New("rate limit exceeded"))
			c.Abort()
			return
		}
		c.Next()
	}
}
