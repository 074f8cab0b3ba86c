package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/internal/response"
)

const contextKeyPayload = "gatekeeper.payload"

// CookiePrefix is prepended to the lowercased role to form the auth cookie
// name, e.g. lernio_admin.
const CookiePrefix = "lernio_"

// CookieName returns the auth cookie of role.
func CookieName(role string) string {
	return CookiePrefix + strings.ToLower(role)
}

// Payload returns the token payload stored by RequireRole.
func Payload(c *gin.Context) (*gatekeeper.TokenPayload, bool) {
	v, ok := c.Get(contextKeyPayload)
	if !ok {
		return nil, false
	}
	p, ok := v.(*gatekeeper.TokenPayload)
	return p, ok && p != nil
}

// RequireRole authenticates the request as role. The token is read from the
// role's cookie first, then from an Authorization: Bearer header.
//
// Missing, invalid and expired tokens, revoked sessions and role mismatches
// all answer the same 401. A session store outage answers 503.
func RequireRole(engine *gatekeeper.Engine, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if engine == nil {
			response.Unauthorized(c)
			return
		}

		token, ok := tokenFromRequest(c, role)
		if !ok {
			response.Unauthorized(c)
			return
		}

		payload, err := engine.Authenticate(c.Request.Context(), token, role)
		if err != nil {
			if errors.Is(err, gatekeeper.ErrStoreUnavailable) {
				response.Error(c, err)
				return
			}
			response.Unauthorized(c)
			return
		}

		c.Set(contextKeyPayload, payload)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context, role string) (string, bool) {
	if cookie, err := c.Cookie(CookieName(role)); err == nil && cookie != "" {
		return cookie, true
	}
	return bearerToken(c.GetHeader("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
