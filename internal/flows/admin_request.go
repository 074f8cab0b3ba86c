package flows

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// Admin request statuses. PENDING is the only non-terminal state.
const (
	AdminRequestPending  = "PENDING"
	AdminRequestApproved = "APPROVED"
	AdminRequestRejected = "REJECTED"
)

const (
	minFullNameLen        = 2
	maxFullNameLen        = 100
	maxRequestReasonLen   = 1000
	maxRejectionReasonLen = 500
)

// Repository sentinels. Implementations of AdminRequestRepository return
// (or wrap) these so the flow can map them onto host errors.
var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrRequestNotPending  = errors.New("admin request is not pending")
	ErrDuplicateRecord    = errors.New("duplicate record")
	ErrAdminAlreadyExists = errors.New("admin account already exists")
)

// AdminRequestRecord is the flow-local view of one invite request.
type AdminRequestRecord struct {
	ID        string
	Email     string
	FullName  string
	Reason    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAdminAccount is what an approval writes into the admin table.
type NewAdminAccount struct {
	Email              string
	FullName           string
	PasswordHash       string
	InvitedByID        string
	MustChangePassword bool
}

type AdminRequestCounts struct {
	Pending  int64
	Approved int64
	Rejected int64
	Total    int64
}

// AdminRequestFilter selects one page of requests, newest first. An empty
// Status matches every status.
type AdminRequestFilter struct {
	Status   string
	Page     int
	PageSize int
}

type AdminRequestPage struct {
	Items    []AdminRequestRecord
	Total    int64
	Page     int
	PageSize int
}

// AdminRequestInput is the public submission payload.
type AdminRequestInput struct {
	Email    string
	FullName string
	Reason   string
}

// AdminApproval is returned after a successful approval.
type AdminApproval struct {
	Request AdminRequestRecord
	AdminID string
}

// AdminRequestRepository is the relational store behind the workflow.
//
// Approve must run in one transaction: re-read the request under lock,
// return ErrRequestNotPending when it is terminal, return
// ErrAdminAlreadyExists when the email already owns an admin row, then insert
// the admin and mark the request APPROVED. Reject must only update a row whose
// status is still PENDING.
type AdminRequestRepository interface {
	FindByEmail(ctx context.Context, email string) (*AdminRequestRecord, error)
	FindByID(ctx context.Context, id string) (*AdminRequestRecord, error)
	AdminExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, rec *AdminRequestRecord) error
	Approve(ctx context.Context, id string, admin NewAdminAccount, now time.Time) (*AdminRequestRecord, string, error)
	Reject(ctx context.Context, id string, now time.Time) (*AdminRequestRecord, error)
	Counts(ctx context.Context) (AdminRequestCounts, error)
	List(ctx context.Context, filter AdminRequestFilter) (AdminRequestPage, error)
}

type AdminRequestMetrics struct {
	Submitted int
	Approved  int
	Rejected  int
	Conflict  int
}

type AdminRequestEvents struct {
	Submitted string
	Approved  string
	Rejected  string
}

type AdminRequestErrors struct {
	EngineNotReady      error
	RequestExists       error
	PreviouslyRejected  error
	AdminExists         error
	Processed           error
	NotFound            error
	DatabaseUnavailable error
}

// AdminRequestDeps captures admin request workflow dependencies.
type AdminRequestDeps struct {
	Repository         AdminRequestRepository
	TempPasswordLength int
	DefaultPageSize    int
	MaxPageSize        int

	Now               func() time.Time
	GenerateTemporary func(int) (string, error)
	HashPassword      func(string) (string, error)
	InvalidInput      func(fields map[string]string) error

	NotifySubmitted func(context.Context, AdminRequestRecord)
	NotifyApproved  func(ctx context.Context, req AdminRequestRecord, tempPassword string)
	NotifyRejected  func(ctx context.Context, req AdminRequestRecord, reason string)

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)

	Metrics AdminRequestMetrics
	Events  AdminRequestEvents
	Errors  AdminRequestErrors
}

func normalizeAdminRequestDeps(deps *AdminRequestDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.InvalidInput == nil {
		deps.InvalidInput = func(map[string]string) error { return errors.New("invalid input") }
	}
	if deps.DefaultPageSize <= 0 {
		deps.DefaultPageSize = 20
	}
	if deps.MaxPageSize <= 0 {
		deps.MaxPageSize = 100
	}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateAdminRequestInput(in AdminRequestInput) map[string]string {
	fields := map[string]string{}
	if in.Email == "" {
		fields["email"] = "Email is required"
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		fields["email"] = "Invalid email address"
	}
	switch n := utf8.RuneCountInString(in.FullName); {
	case n == 0:
		fields["fullName"] = "Full name is required"
	case n < minFullNameLen:
		fields["fullName"] = "Full name is too short"
	case n > maxFullNameLen:
		fields["fullName"] = "Full name is too long"
	}
	if utf8.RuneCountInString(in.Reason) > maxRequestReasonLen {
		fields["reason"] = "Reason is too long"
	}
	return fields
}

// RunSubmitAdminRequest records a new PENDING request after checking that
// the email is neither an admin nor the owner of an earlier request.
func RunSubmitAdminRequest(ctx context.Context, in AdminRequestInput, deps AdminRequestDeps) (*AdminRequestRecord, error) {
	normalizeAdminRequestDeps(&deps)
	if deps.Repository == nil {
		return nil, deps.Errors.EngineNotReady
	}

	in.Email = NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Reason = strings.TrimSpace(in.Reason)
	if fields := validateAdminRequestInput(in); len(fields) > 0 {
		return nil, deps.InvalidInput(fields)
	}

	conflict := func(err error, reason string) error {
		deps.MetricInc(deps.Metrics.Conflict)
		deps.EmitAudit(ctx, AuditRecord{
			Event:    deps.Events.Submitted,
			Identity: in.Email,
			Err:      err,
			Metadata: func() map[string]string {
				return map[string]string{"reason": reason}
			},
		})
		return err
	}

	exists, err := deps.Repository.AdminExists(ctx, in.Email)
	if err != nil {
		return nil, mapRepositoryError(err, deps.Errors)
	}
	if exists {
		return nil, conflict(deps.Errors.AdminExists, "admin_exists")
	}

	prior, err := deps.Repository.FindByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, mapRepositoryError(err, deps.Errors)
	}
	if prior != nil {
		switch prior.Status {
		case AdminRequestPending:
			return nil, conflict(deps.Errors.RequestExists, "pending")
		case AdminRequestRejected:
			return nil, conflict(deps.Errors.PreviouslyRejected, "rejected")
		default:
			return nil, conflict(deps.Errors.AdminExists, "approved")
		}
	}

	now := deps.Now().UTC()
	rec := &AdminRequestRecord{
		Email:     in.Email,
		FullName:  in.FullName,
		Reason:    in.Reason,
		Status:    AdminRequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := deps.Repository.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return nil, conflict(deps.Errors.RequestExists, "duplicate")
		}
		return nil, mapRepositoryError(err, deps.Errors)
	}

	deps.MetricInc(deps.Metrics.Submitted)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.Submitted,
		Success:  true,
		Identity: rec.Email,
		Metadata: func() map[string]string {
			return map[string]string{"request_id": rec.ID}
		},
	})
	if deps.NotifySubmitted != nil {
		deps.NotifySubmitted(ctx, *rec)
	}
	return rec, nil
}

// RunApproveAdminRequest moves a PENDING request to APPROVED and creates the
// admin account with a freshly generated temporary password. The plaintext
// password only leaves this function through NotifyApproved.
func RunApproveAdminRequest(ctx context.Context, actorID, requestID string, deps AdminRequestDeps) (*AdminApproval, error) {
	normalizeAdminRequestDeps(&deps)
	if deps.Repository == nil || deps.GenerateTemporary == nil || deps.HashPassword == nil {
		return nil, deps.Errors.EngineNotReady
	}

	req, err := deps.Repository.FindByID(ctx, requestID)
	if err != nil {
		return nil, mapRepositoryError(err, deps.Errors)
	}
	if req.Status != AdminRequestPending {
		deps.EmitAudit(ctx, AuditRecord{
			Event:    deps.Events.Approved,
			Identity: req.Email,
			ActorID:  actorID,
			Err:      deps.Errors.Processed,
			Metadata: func() map[string]string {
				return map[string]string{"request_id": req.ID, "status": req.Status}
			},
		})
		return nil, deps.Errors.Processed
	}

	temp, err := deps.GenerateTemporary(deps.TempPasswordLength)
	if err != nil {
		return nil, err
	}
	hash, err := deps.HashPassword(temp)
	if err != nil {
		return nil, err
	}

	updated, adminID, err := deps.Repository.Approve(ctx, req.ID, NewAdminAccount{
		Email:              req.Email,
		FullName:           req.FullName,
		PasswordHash:       hash,
		InvitedByID:        actorID,
		MustChangePassword: true,
	}, deps.Now().UTC())
	if err != nil {
		mapped := mapRepositoryError(err, deps.Errors)
		deps.EmitAudit(ctx, AuditRecord{
			Event:    deps.Events.Approved,
			Identity: req.Email,
			ActorID:  actorID,
			Err:      mapped,
			Metadata: func() map[string]string {
				return map[string]string{"request_id": req.ID}
			},
		})
		return nil, mapped
	}

	deps.MetricInc(deps.Metrics.Approved)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.Approved,
		Success:  true,
		Identity: updated.Email,
		ActorID:  actorID,
		Metadata: func() map[string]string {
			return map[string]string{"request_id": updated.ID, "admin_id": adminID}
		},
	})
	if deps.NotifyApproved != nil {
		deps.NotifyApproved(ctx, *updated, temp)
	}
	return &AdminApproval{Request: *updated, AdminID: adminID}, nil
}

// RunRejectAdminRequest moves a PENDING request to REJECTED. The optional
// reason is only carried in the notification.
func RunRejectAdminRequest(ctx context.Context, actorID, requestID, reason string, deps AdminRequestDeps) (*AdminRequestRecord, error) {
	normalizeAdminRequestDeps(&deps)
	if deps.Repository == nil {
		return nil, deps.Errors.EngineNotReady
	}

	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxRejectionReasonLen {
		return nil, deps.InvalidInput(map[string]string{"reason": "Reason is too long"})
	}

	updated, err := deps.Repository.Reject(ctx, requestID, deps.Now().UTC())
	if err != nil {
		mapped := mapRepositoryError(err, deps.Errors)
		deps.EmitAudit(ctx, AuditRecord{
			Event:   deps.Events.Rejected,
			ActorID: actorID,
			Err:     mapped,
			Metadata: func() map[string]string {
				return map[string]string{"request_id": requestID}
			},
		})
		return nil, mapped
	}

	deps.MetricInc(deps.Metrics.Rejected)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.Rejected,
		Success:  true,
		Identity: updated.Email,
		ActorID:  actorID,
		Metadata: func() map[string]string {
			return map[string]string{"request_id": updated.ID}
		},
	})
	if deps.NotifyRejected != nil {
		deps.NotifyRejected(ctx, *updated, reason)
	}
	return updated, nil
}

func RunAdminRequestCounts(ctx context.Context, deps AdminRequestDeps) (AdminRequestCounts, error) {
	normalizeAdminRequestDeps(&deps)
	if deps.Repository == nil {
		return AdminRequestCounts{}, deps.Errors.EngineNotReady
	}
	counts, err := deps.Repository.Counts(ctx)
	if err != nil {
		return AdminRequestCounts{}, mapRepositoryError(err, deps.Errors)
	}
	return counts, nil
}

func RunListAdminRequests(ctx context.Context, filter AdminRequestFilter, deps AdminRequestDeps) (AdminRequestPage, error) {
	normalizeAdminRequestDeps(&deps)
	if deps.Repository == nil {
		return AdminRequestPage{}, deps.Errors.EngineNotReady
	}

	filter.Status = strings.ToUpper(strings.TrimSpace(filter.Status))
	switch filter.Status {
	case "", AdminRequestPending, AdminRequestApproved, AdminRequestRejected:
	default:
		return AdminRequestPage{}, deps.InvalidInput(map[string]string{"status": "Unknown status"})
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = deps.DefaultPageSize
	}
	if filter.PageSize > deps.MaxPageSize {
		filter.PageSize = deps.MaxPageSize
	}

	page, err := deps.Repository.List(ctx, filter)
	if err != nil {
		return AdminRequestPage{}, mapRepositoryError(err, deps.Errors)
	}
	if page.Items == nil {
		page.Items = []AdminRequestRecord{}
	}
	page.Page = filter.Page
	page.PageSize = filter.PageSize
	return page, nil
}

func mapRepositoryError(err error, errs AdminRequestErrors) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrRecordNotFound):
		return errs.NotFound
	case errors.Is(err, ErrRequestNotPending):
		return errs.Processed
	case errors.Is(err, ErrAdminAlreadyExists):
		return errs.AdminExists
	case errors.Is(err, ErrDuplicateRecord):
		return errs.RequestExists
	}
	if errs.DatabaseUnavailable == nil {
		return err
	}
	return errors.Join(errs.DatabaseUnavailable, err)
}
