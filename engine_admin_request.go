package gatekeeper

import (
	"context"

	"github.com/lernio/gatekeeper/internal/flows"
	"github.com/lernio/gatekeeper/password"
)

// SubmitAdminRequest records a PENDING invite request.
//
// It fails with ErrAdminRequestExists when a request for the email is still
// pending, ErrAdminRequestPreviouslyRejected when an earlier one was
// rejected, and ErrAdminAlreadyExists when the email already owns an admin
// account.
func (e *Engine) SubmitAdminRequest(ctx context.Context, in AdminRequestInput) (*AdminRequest, error) {
	return flows.RunSubmitAdminRequest(ctx, in, e.adminRequestFlowDeps())
}

// ApproveAdminRequest creates the admin account with a temporary password
// and marks the request APPROVED in one transaction, then queues the email
// carrying the password. actor must be an authenticated ADMINISTRATOR.
func (e *Engine) ApproveAdminRequest(ctx context.Context, actor *TokenPayload, requestID string) (*AdminApproval, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	return flows.RunApproveAdminRequest(ctx, actor.UserID, requestID, e.adminRequestFlowDeps())
}

// RejectAdminRequest marks a PENDING request REJECTED and queues a notice
// carrying the optional reason.
func (e *Engine) RejectAdminRequest(ctx context.Context, actor *TokenPayload, requestID, reason string) (*AdminRequest, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	return flows.RunRejectAdminRequest(ctx, actor.UserID, requestID, reason, e.adminRequestFlowDeps())
}

// AdminRequestCounts returns per-status totals.
func (e *Engine) AdminRequestCounts(ctx context.Context) (AdminRequestCounts, error) {
	return flows.RunAdminRequestCounts(ctx, e.adminRequestFlowDeps())
}

// ListAdminRequests returns one page of requests, newest first, optionally
// filtered by status.
func (e *Engine) ListAdminRequests(ctx context.Context, filter AdminRequestFilter) (AdminRequestPage, error) {
	return flows.RunListAdminRequests(ctx, filter, e.adminRequestFlowDeps())
}

func requireAdministrator(actor *TokenPayload) error {
	if actor == nil || actor.UserID == "" {
		return ErrUnauthorized
	}
	if actor.Role != RoleAdministrator {
		return ErrForbidden
	}
	return nil
}

func (e *Engine) adminRequestFlowDeps() flows.AdminRequestDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := flows.AdminRequestDeps{
		TempPasswordLength: cfg.AdminRequest.TempPasswordLength,
		DefaultPageSize:    cfg.AdminRequest.DefaultPageSize,
		MaxPageSize:        cfg.AdminRequest.MaxPageSize,
		Now:                e.clock,
		GenerateTemporary:  password.GenerateTemporary,
		InvalidInput:       NewValidationError,
		MetricInc:          e.flowMetricInc,
		EmitAudit:          e.emitFlowAudit,
		Metrics: flows.AdminRequestMetrics{
			Submitted: int(MetricAdminRequestSubmitted),
			Approved:  int(MetricAdminRequestApproved),
			Rejected:  int(MetricAdminRequestRejected),
			Conflict:  int(MetricAdminRequestConflict),
		},
		Events: flows.AdminRequestEvents{
			Submitted: auditEventAdminRequestSubmitted,
			Approved:  auditEventAdminRequestApproved,
			Rejected:  auditEventAdminRequestRejected,
		},
		Errors: flows.AdminRequestErrors{
			EngineNotReady:      ErrEngineNotReady,
			RequestExists:       ErrAdminRequestExists,
			PreviouslyRejected:  ErrAdminRequestPreviouslyRejected,
			AdminExists:         ErrAdminAlreadyExists,
			Processed:           ErrAdminRequestProcessed,
			NotFound:            ErrAdminRequestNotFound,
			DatabaseUnavailable: ErrDatabaseUnavailable,
		},
	}
	if e == nil {
		return deps
	}
	deps.Repository = e.adminRequests
	if e.passwordHash != nil {
		deps.HashPassword = e.passwordHash.Hash
	}
	deps.NotifySubmitted = e.notifyAdminSubmitted
	deps.NotifyApproved = e.notifyAdminApproved
	deps.NotifyRejected = e.notifyAdminRejected
	return deps
}
