package flows

import (
	"context"
	"errors"
	"strings"
)

// ErrAccountNotFound is returned (or wrapped) by account lookups for an
// email with no row in the role's table.
var ErrAccountNotFound = errors.New("account not found")

// LoginAccount is a flow-local account record for one role table.
type LoginAccount struct {
	ID                 string
	Email              string
	FullName           string
	Role               string
	PasswordHash       string
	AvatarLink         string
	MustChangePassword bool
}

// LoginRequest carries credentials plus the attributes of the new session.
type LoginRequest struct {
	Email     string
	Password  string
	Role      string
	Device    string
	IP        string
	UserAgent string
	Location  string
}

// LoginResult is the flow-local login response shape. Token is empty when
// the session limit was hit.
type LoginResult struct {
	Account LoginAccount
	Session *SessionResult
	Token   string
}

type LoginMetrics struct {
	LoginSuccess int
	LoginFailure int
}

type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	UpgradeOnLogin bool

	FindAccount        func(ctx context.Context, role, email string) (LoginAccount, error)
	IsAccountNotFound  func(error) bool
	VerifyPassword     func(password, hash string) (bool, error)
	NeedsUpgrade       func(hash string) (bool, error)
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, role, email, hash string) error

	CreateSession func(context.Context, SessionRequest) (*SessionResult, error)
	IssueToken    func(LoginAccount, string) (string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials against the role's account table, creates a
// session and signs a token bound to it. Unknown accounts and wrong passwords
// both yield InvalidCredentials.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) (*LoginResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.IsAccountNotFound == nil {
		deps.IsAccountNotFound = func(error) bool { return false }
	}
	if deps.FindAccount == nil ||
		deps.VerifyPassword == nil ||
		deps.CreateSession == nil ||
		deps.IssueToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email := NormalizeEmail(req.Email)
	fail := func(identity, reason string) error {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, AuditRecord{
			Event:    deps.Events.LoginFailure,
			Identity: identity,
			Role:     req.Role,
			Err:      deps.Errors.InvalidCredentials,
			Metadata: func() map[string]string {
				return map[string]string{"reason": reason}
			},
		})
		return deps.Errors.InvalidCredentials
	}

	if email == "" || req.Password == "" {
		return nil, fail(email, "empty_credentials")
	}

	account, err := deps.FindAccount(ctx, req.Role, email)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if deps.IsAccountNotFound(err) {
			return nil, fail(email, "account_not_found")
		}
		return nil, err
	}

	ok, err := deps.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil || !ok {
		return nil, fail(email, "password_mismatch")
	}

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if needs, err := deps.NeedsUpgrade(account.PasswordHash); err == nil && needs {
			if upgraded, err := deps.HashPassword(req.Password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, req.Role, account.Email, upgraded); err != nil {
					deps.Warn("password hash upgrade update failed", "role", req.Role)
				}
			} else {
				deps.Warn("password hash upgrade generation failed", "role", req.Role)
			}
		}
	}
	req.Password = ""

	identity := account.Email
	if identity == "" {
		identity = email
	}
	sess, err := deps.CreateSession(ctx, SessionRequest{
		Identity:  identity,
		Role:      req.Role,
		Device:    strings.TrimSpace(req.Device),
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Location:  req.Location,
	})
	if err != nil {
		return nil, err
	}
	if sess.LimitExceeded {
		return &LoginResult{Account: account, Session: sess}, nil
	}

	token, err := deps.IssueToken(account, sess.Session.SessionID)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, AuditRecord{
		Event:     deps.Events.LoginSuccess,
		Success:   true,
		Identity:  identity,
		Role:      req.Role,
		ActorID:   account.ID,
		SessionID: sess.Session.SessionID,
	})
	return &LoginResult{
		Account: account,
		Session: sess,
		Token:   token,
	}, nil
}
