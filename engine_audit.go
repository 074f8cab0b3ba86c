package gatekeeper

import (
	"context"
	"errors"
	"time"

	"github.com/lernio/gatekeeper/internal/flows"
)

const (
	auditEventSessionCreated        = "session_created"
	auditEventSessionLimitExceeded  = "session_limit_exceeded"
	auditEventSessionInvalidated    = "session_invalidated"
	auditEventSessionInvalidatedAll = "session_invalidated_all"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventRateLimitStoreError   = "rate_limit_store_error"
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventAdminRequestSubmitted = "admin_request_submitted"
	auditEventAdminRequestApproved  = "admin_request_approved"
	auditEventAdminRequestRejected  = "admin_request_rejected"
	auditEventTestMailSent          = "test_mail_sent"
)

// AuditErrorCode is the coarse, non-sensitive error label stored on events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrSessionLimit       AuditErrorCode = "session_limit_exceeded"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPreviouslyRejected AuditErrorCode = "previously_rejected"
	auditErrAlreadyProcessed   AuditErrorCode = "already_processed"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identity string,
	role string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	e.emitFlowAudit(ctx, flows.AuditRecord{
		Event:     eventType,
		Success:   success,
		Identity:  identity,
		Role:      role,
		SessionID: sessionID,
		Err:       err,
		Metadata:  metadataBuilder,
	})
}

// emitFlowAudit is handed to flows as their EmitAudit dependency.
func (e *Engine) emitFlowAudit(ctx context.Context, rec flows.AuditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if rec.Metadata != nil {
		metadata = rec.Metadata()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["request_id"] = id
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: rec.Event,
		Identity:  rec.Identity,
		Role:      rec.Role,
		ActorID:   rec.ActorID,
		SessionID: rec.SessionID,
		IP:        ClientIPFromContext(ctx),
		Success:   rec.Success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(rec.Err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	policy RateLimitPolicy,
	clientKey string,
	decision RateLimitDecision,
) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"policy":     string(policy),
			"client_key": clientKey,
			"reset_at":   decision.ResetAt.UTC().Format(time.RFC3339),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownRole):
		return auditErrInvalidInput
	case errors.Is(err, ErrPasswordResetInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionLimitExceeded):
		return auditErrSessionLimit
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrAdminRequestExists),
		errors.Is(err, ErrAdminAlreadyExists):
		return auditErrDuplicate
	case errors.Is(err, ErrAdminRequestPreviouslyRejected):
		return auditErrPreviouslyRejected
	case errors.Is(err, ErrAdminRequestProcessed):
		return auditErrAlreadyProcessed
	case errors.Is(err, ErrAdminRequestNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrDatabaseUnavailable),
		errors.Is(err, ErrPasswordResetUnavailable),
		errors.Is(err, ErrMailUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
