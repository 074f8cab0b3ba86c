package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// PasswordResetRecord mirrors the stored reset payload.
type PasswordResetRecord struct {
	Email       string
	Stakeholder string
}

type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady           error
	PasswordResetInvalid     error
	PasswordResetUnavailable error
	PasswordPolicy           error
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	ResetTTL         time.Duration
	MinPasswordBytes int
	MaxPasswordBytes int

	ValidRole         func(string) bool
	FindAccount       func(ctx context.Context, role, email string) (LoginAccount, error)
	IsAccountNotFound func(error) bool
	NewToken          func() (string, error)
	ValidToken        func(string) bool

	SaveResetRecord    func(context.Context, string, PasswordResetRecord, time.Duration) error
	ConsumeResetRecord func(context.Context, string) (PasswordResetRecord, error)
	IsRecordNotFound   func(error) bool
	MapStoreError      func(error) error

	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, role, email, hash string) error
	InvalidateAll      func(ctx context.Context, identity, role string) error

	SendResetLink func(ctx context.Context, account LoginAccount, token string, ttl time.Duration)

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)
	Warn      func(string, ...any)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.IsAccountNotFound == nil {
		deps.IsAccountNotFound = func(error) bool { return false }
	}
	if deps.IsRecordNotFound == nil {
		deps.IsRecordNotFound = func(error) bool { return false }
	}
	if deps.ValidRole == nil {
		deps.ValidRole = func(string) bool { return true }
	}
}

// RunRequestPasswordReset stores a single-use reset token for the account
// and hands it to SendResetLink. Unknown emails succeed silently with an
// empty token so callers cannot probe which accounts exist.
func RunRequestPasswordReset(ctx context.Context, email, role string, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)
	if deps.FindAccount == nil || deps.NewToken == nil || deps.SaveResetRecord == nil {
		return "", deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" || !deps.ValidRole(role) {
		deps.EmitAudit(ctx, AuditRecord{
			Event:    deps.Events.PasswordResetRequest,
			Identity: email,
			Role:     role,
			Err:      deps.Errors.PasswordResetInvalid,
		})
		return "", deps.Errors.PasswordResetInvalid
	}

	account, err := deps.FindAccount(ctx, role, email)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if !deps.IsAccountNotFound(err) {
			return "", deps.MapStoreError(err)
		}
		deps.MetricInc(deps.Metrics.PasswordResetRequest)
		deps.EmitAudit(ctx, AuditRecord{
			Event:    deps.Events.PasswordResetRequest,
			Success:  true,
			Identity: email,
			Role:     role,
			Metadata: func() map[string]string {
				return map[string]string{"enumeration_safe": "true"}
			},
		})
		return "", nil
	}

	token, err := deps.NewToken()
	if err != nil {
		return "", deps.Errors.PasswordResetUnavailable
	}
	record := PasswordResetRecord{Email: account.Email, Stakeholder: role}
	if record.Email == "" {
		record.Email = email
	}
	if err := deps.SaveResetRecord(ctx, token, record, deps.ResetTTL); err != nil {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, AuditRecord{
			Event:    deps.Events.PasswordResetRequest,
			Identity: email,
			Role:     role,
			Err:      mapped,
		})
		return "", mapped
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.PasswordResetRequest,
		Success:  true,
		Identity: record.Email,
		Role:     role,
		ActorID:  account.ID,
	})
	if deps.SendResetLink != nil {
		deps.SendResetLink(ctx, account, token, deps.ResetTTL)
	}
	return token, nil
}

// RunConsumePasswordReset atomically reads and deletes the reset record.
// A second call with the same token yields PasswordResetInvalid.
func RunConsumePasswordReset(ctx context.Context, token string, deps PasswordResetDeps) (PasswordResetRecord, error) {
	normalizePasswordResetDeps(&deps)
	if deps.ConsumeResetRecord == nil {
		return PasswordResetRecord{}, deps.Errors.EngineNotReady
	}

	token = strings.TrimSpace(token)
	if deps.ValidToken != nil && !deps.ValidToken(token) {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		return PasswordResetRecord{}, deps.Errors.PasswordResetInvalid
	}

	record, err := deps.ConsumeResetRecord(ctx, token)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		if deps.IsRecordNotFound(err) {
			deps.EmitAudit(ctx, AuditRecord{
				Event: deps.Events.PasswordResetConfirm,
				Err:   deps.Errors.PasswordResetInvalid,
			})
			return PasswordResetRecord{}, deps.Errors.PasswordResetInvalid
		}
		return PasswordResetRecord{}, deps.MapStoreError(err)
	}
	return record, nil
}

// RunCompletePasswordReset consumes the token, stores the new hash and
// revokes every session of the identity. The password policy is checked
// before the token is consumed so a rejected password does not burn it.
func RunCompletePasswordReset(ctx context.Context, token, newPassword string, deps PasswordResetDeps) (PasswordResetRecord, error) {
	normalizePasswordResetDeps(&deps)
	if deps.HashPassword == nil || deps.UpdatePasswordHash == nil || deps.InvalidateAll == nil {
		return PasswordResetRecord{}, deps.Errors.EngineNotReady
	}

	if len(newPassword) < deps.MinPasswordBytes || (deps.MaxPasswordBytes > 0 && len(newPassword) > deps.MaxPasswordBytes) {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		return PasswordResetRecord{}, deps.Errors.PasswordPolicy
	}

	record, err := RunConsumePasswordReset(ctx, token, deps)
	if err != nil {
		return PasswordResetRecord{}, err
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		return PasswordResetRecord{}, deps.Errors.PasswordPolicy
	}
	if err := deps.UpdatePasswordHash(ctx, record.Stakeholder, record.Email, hash); err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, AuditRecord{
			Event:    deps.Events.PasswordResetConfirm,
			Identity: record.Email,
			Role:     record.Stakeholder,
			Err:      err,
		})
		return PasswordResetRecord{}, err
	}
	if err := deps.InvalidateAll(ctx, record.Email, record.Stakeholder); err != nil {
		deps.Warn("session invalidation after password reset failed", "role", record.Stakeholder)
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.PasswordResetConfirm,
		Success:  true,
		Identity: record.Email,
		Role:     record.Stakeholder,
	})
	return record, nil
}
