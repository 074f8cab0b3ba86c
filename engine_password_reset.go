package gatekeeper

import (
	"context"
	"errors"
	"time"

	"github.com/lernio/gatekeeper/internal"
	"github.com/lernio/gatekeeper/internal/flows"
	"github.com/lernio/gatekeeper/internal/stores"
)

// PasswordResetRecord identifies the account a reset token was issued for.
type PasswordResetRecord = flows.PasswordResetRecord

// RequestPasswordReset stores a single-use reset token for (role, email)
// and queues the reset link email. Unknown emails succeed with an empty
// token so callers cannot probe which accounts exist.
func (e *Engine) RequestPasswordReset(ctx context.Context, email, role string) (string, error) {
	if e == nil || !e.config.PasswordReset.Enabled {
		return "", ErrEngineNotReady
	}
	return flows.RunRequestPasswordReset(ctx, email, role, e.passwordResetFlowDeps())
}

// ConsumePasswordReset reads and deletes the reset record in one step. The
// caller is expected to invalidate the identity's sessions afterwards;
// CompletePasswordReset does that itself.
func (e *Engine) ConsumePasswordReset(ctx context.Context, token string) (PasswordResetRecord, error) {
	if e == nil || !e.config.PasswordReset.Enabled {
		return PasswordResetRecord{}, ErrEngineNotReady
	}
	return flows.RunConsumePasswordReset(ctx, token, e.passwordResetFlowDeps())
}

// CompletePasswordReset consumes token, stores the new password hash and
// revokes every session of the identity.
func (e *Engine) CompletePasswordReset(ctx context.Context, token, newPassword string) (PasswordResetRecord, error) {
	if e == nil || !e.config.PasswordReset.Enabled {
		return PasswordResetRecord{}, ErrEngineNotReady
	}
	return flows.RunCompletePasswordReset(ctx, token, newPassword, e.passwordResetFlowDeps())
}

func (e *Engine) passwordResetFlowDeps() flows.PasswordResetDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := flows.PasswordResetDeps{
		ResetTTL:          cfg.PasswordReset.TTL,
		MinPasswordBytes:  cfg.Password.MinPasswordBytes,
		MaxPasswordBytes:  cfg.Password.MaxPasswordBytes,
		ValidRole:         ValidRole,
		IsAccountNotFound: isAccountNotFound,
		NewToken:          internal.NewResetToken,
		ValidToken:        internal.ValidResetToken,
		IsRecordNotFound: func(err error) bool {
			return errors.Is(err, stores.ErrResetNotFound) || errors.Is(err, stores.ErrResetRecordCorrupt)
		},
		MapStoreError: func(err error) error {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, ErrDatabaseUnavailable):
				return err
			}
			return errors.Join(ErrPasswordResetUnavailable, e.mapStoreError(err))
		},
		UpdatePasswordHash: e.updatePasswordHash,
		InvalidateAll: func(ctx context.Context, identity, role string) error {
			_, err := e.InvalidateAllSessions(ctx, identity, role)
			return err
		},
		SendResetLink: e.sendResetLink,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitFlowAudit,
		Warn:          e.warn,
		Metrics: flows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
		},
		Events: flows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: flows.PasswordResetErrors{
			EngineNotReady:           ErrEngineNotReady,
			PasswordResetInvalid:     ErrPasswordResetInvalid,
			PasswordResetUnavailable: ErrPasswordResetUnavailable,
			PasswordPolicy:           ErrPasswordPolicy,
		},
	}
	if e == nil {
		return deps
	}
	if e.accounts != nil {
		deps.FindAccount = e.findAccount
	}
	if e.passwordHash != nil {
		deps.HashPassword = e.passwordHash.Hash
	}
	if e.resetStore != nil {
		store := e.resetStore
		deps.SaveResetRecord = func(ctx context.Context, token string, rec flows.PasswordResetRecord, ttl time.Duration) error {
			return store.Save(ctx, token, &stores.PasswordResetRecord{
				Email:       rec.Email,
				Stakeholder: rec.Stakeholder,
			}, ttl)
		}
		deps.ConsumeResetRecord = func(ctx context.Context, token string) (flows.PasswordResetRecord, error) {
			rec, err := store.Consume(ctx, token)
			if err != nil {
				return flows.PasswordResetRecord{}, err
			}
			return flows.PasswordResetRecord{Email: rec.Email, Stakeholder: rec.Stakeholder}, nil
		}
	}
	return deps
}
