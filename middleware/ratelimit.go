package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/internal/response"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimit counts every request against policy, keyed by client IP.
//
// Allowed requests carry the X-RateLimit-* headers. Rejected requests get a
// 429 envelope and a Retry-After header in whole seconds.
func RateLimit(engine *gatekeeper.Engine, policy gatekeeper.RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := engine.ConsumeRateLimit(c.Request.Context(), c.ClientIP(), policy)
		if err != nil {
			response.Error(c, err)
			return
		}

		if decision.Limit > 0 {
			c.Header(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			c.Header(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
		}
		if !decision.ResetAt.IsZero() {
			c.Header(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}

		if !decision.Allowed {
			wait := decision.RetryAfter(time.Now())
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			response.Error(c, gatekeeper.ErrRateLimited)
			return
		}

		c.Next()
	}
}
