package gatekeeper

import (
	"context"
	"errors"
	"strings"

	"github.com/lernio/gatekeeper/internal/rate"
)

// ConsumeRateLimit counts one request of clientKey against policy.
//
// Windows are fixed, not sliding: a client can spend its full budget at the
// end of one window and again at the start of the next, so up to twice the
// limit may pass across a boundary.
//
// When the counter store fails and RateLimit.FailOpen is set, the request is
// allowed, the failure is logged, and the error is swallowed. Otherwise the
// wrapped ErrStoreUnavailable is returned. A denied request is reported via
// Decision.Allowed, not as an error.
func (e *Engine) ConsumeRateLimit(ctx context.Context, clientKey string, policy RateLimitPolicy) (RateLimitDecision, error) {
	if e == nil || e.rateLimiter == nil {
		return RateLimitDecision{}, ErrEngineNotReady
	}
	if !e.config.RateLimit.Enabled {
		return RateLimitDecision{Allowed: true}, nil
	}
	if strings.TrimSpace(clientKey) == "" {
		clientKey = ClientIPFromContext(ctx)
	}

	decision, err := e.rateLimiter.Consume(ctx, clientKey, policy)
	if err != nil {
		if errors.Is(err, rate.ErrUnknownPolicy) {
			return RateLimitDecision{}, NewValidationError(map[string]string{"policy": "unknown rate limit policy"})
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return RateLimitDecision{}, err
		}

		e.metricInc(MetricRateLimitStoreError)
		e.emitAudit(ctx, auditEventRateLimitStoreError, false, "", "", "", ErrStoreUnavailable, func() map[string]string {
			return map[string]string{"policy": string(policy)}
		})
		if e.config.RateLimit.FailOpen {
			e.warn("rate limit store unavailable, allowing request",
				"op", "rate_limit.consume",
				"policy", string(policy),
				"request_id", RequestIDFromContext(ctx),
				"error", err.Error(),
			)
			rule, _ := e.rateLimiter.Rule(policy)
			return RateLimitDecision{Allowed: true, Limit: rule.Max, Remaining: rule.Max}, nil
		}
		return RateLimitDecision{}, e.mapStoreError(err)
	}

	if !decision.Allowed {
		e.metricInc(MetricRateLimitDenied)
		e.emitRateLimit(ctx, policy, clientKey, decision)
		return decision, nil
	}
	e.metricInc(MetricRateLimitAllowed)
	return decision, nil
}

// ResetRateLimit clears the counter of clientKey for policy.
func (e *Engine) ResetRateLimit(ctx context.Context, clientKey string, policy RateLimitPolicy) error {
	if e == nil || e.rateLimiter == nil {
		return ErrEngineNotReady
	}
	if err := e.rateLimiter.Reset(ctx, clientKey, policy); err != nil {
		return e.mapStoreError(err)
	}
	return nil
}

// RateLimitRule returns the budget of policy.
func (e *Engine) RateLimitRule(policy RateLimitPolicy) (RateLimitRule, bool) {
	if e == nil || e.rateLimiter == nil {
		return RateLimitRule{}, false
	}
	return e.rateLimiter.Rule(policy)
}
