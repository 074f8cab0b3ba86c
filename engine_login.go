package gatekeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/lernio/gatekeeper/internal/flows"
)

// Login verifies credentials against the role's account table, creates a
// session and issues a token bound to it.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
// When the session limit is reached the result carries
// Session.LimitExceeded, the active sessions and no token; no session is
// written.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if !ValidRole(req.Role) {
		return nil, ErrUnknownRole
	}
	if req.IP == "" {
		req.IP = ClientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}
	return flows.RunLogin(ctx, req, e.loginFlowDeps())
}

// Logout deletes the session the payload was issued for.
func (e *Engine) Logout(ctx context.Context, payload *TokenPayload) error {
	if payload == nil {
		return ErrUnauthorized
	}
	err := e.InvalidateSession(ctx, payload.SessionID, payload.Email, payload.Role)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

func (e *Engine) findAccount(ctx context.Context, role, email string) (Account, error) {
	if e == nil || e.accounts == nil {
		return Account{}, ErrEngineNotReady
	}
	acc, err := e.accounts.FindAccount(ctx, role, email)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return Account{}, err
		}
		return Account{}, fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
	}
	if acc.Role == "" {
		acc.Role = role
	}
	return acc, nil
}

func (e *Engine) updatePasswordHash(ctx context.Context, role, email, hash string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if err := e.accounts.UpdatePasswordHash(ctx, role, email, hash); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
	}
	return nil
}

func isAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func (e *Engine) issueAccountToken(account Account, sessionID string) (string, error) {
	return e.IssueToken(TokenPayload{
		UserID:     account.ID,
		Email:      account.Email,
		FullName:   account.FullName,
		Role:       account.Role,
		SessionID:  sessionID,
		AvatarLink: account.AvatarLink,
	})
}

func (e *Engine) loginFlowDeps() flows.LoginDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := flows.LoginDeps{
		UpgradeOnLogin:     cfg.Password.UpgradeOnLogin,
		IsAccountNotFound:  isAccountNotFound,
		UpdatePasswordHash: e.updatePasswordHash,
		CreateSession:      e.CreateSession,
		IssueToken:         e.issueAccountToken,
		MetricInc:          e.flowMetricInc,
		EmitAudit:          e.emitFlowAudit,
		Warn:               e.warn,
		Metrics: flows.LoginMetrics{
			LoginSuccess: int(MetricLoginSuccess),
			LoginFailure: int(MetricLoginFailure),
		},
		Events: flows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
		},
	}
	if e != nil && e.accounts != nil {
		deps.FindAccount = e.findAccount
	}
	if e != nil && e.passwordHash != nil {
		deps.VerifyPassword = e.passwordHash.Verify
		deps.NeedsUpgrade = e.passwordHash.NeedsUpgrade
		deps.HashPassword = e.passwordHash.Hash
	}
	return deps
}
