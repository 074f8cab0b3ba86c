package gatekeeper

import (
	"context"
	"errors"
	"time"

	"github.com/lernio/gatekeeper/jwt"
)

// IssueToken signs payload. ExpiresAt on the input is ignored; the
// configured Token.TTL applies.
func (e *Engine) IssueToken(payload TokenPayload) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	token, err := e.jwtManager.Sign(jwt.Claims{
		UserID:     payload.UserID,
		Email:      payload.Email,
		FullName:   payload.FullName,
		Role:       payload.Role,
		SessionID:  payload.SessionID,
		AvatarLink: payload.AvatarLink,
	})
	if err != nil {
		return "", err
	}
	e.metricInc(MetricTokenIssued)
	return token, nil
}

// VerifyToken returns the payload of a valid token. Any failure (malformed,
// expired, tampered, wrong key) yields (nil, false); callers treat that as
// unauthenticated and carry on.
func (e *Engine) VerifyToken(token string) (*TokenPayload, bool) {
	if e == nil || e.jwtManager == nil || token == "" {
		return nil, false
	}
	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, false
	}
	payload := &TokenPayload{
		UserID:     claims.UserID,
		Email:      claims.Email,
		FullName:   claims.FullName,
		Role:       claims.Role,
		SessionID:  claims.SessionID,
		AvatarLink: claims.AvatarLink,
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Time
	}
	return payload, true
}

// TokenTTL is the lifetime of issued tokens; cookies use it as Max-Age.
func (e *Engine) TokenTTL() time.Duration {
	if e == nil || e.jwtManager == nil {
		return 0
	}
	return e.jwtManager.TTL()
}

// Authenticate verifies token, checks that it was issued for role, checks
// that its session still exists and refreshes the session TTL.
//
// Every failure is ErrUnauthorized except store outages, which are reported
// as ErrStoreUnavailable so callers can answer 5xx instead of logging the
// user out.
func (e *Engine) Authenticate(ctx context.Context, token, role string) (*TokenPayload, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	payload, ok := e.VerifyToken(token)
	if !ok {
		return nil, ErrUnauthorized
	}
	if role != "" && payload.Role != role {
		e.metricInc(MetricTokenRejected)
		return nil, ErrUnauthorized
	}

	identity := normalizeIdentity(payload.Email)
	exists, err := e.sessionExists(ctx, payload.Role, identity, payload.SessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		e.metricInc(MetricTokenRejected)
		return nil, ErrUnauthorized
	}

	if err := e.UpdateSessionActivity(ctx, payload.SessionID, identity, payload.Role); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		e.warn("session activity refresh failed",
			"op", "authenticate",
			"role", payload.Role,
			"request_id", RequestIDFromContext(ctx),
			"error", err.Error(),
		)
	}
	return payload, nil
}
