package flows

import "context"

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Session       SessionDeps
	Login         LoginDeps
	PasswordReset PasswordResetDeps
	AdminRequest  AdminRequestDeps
}

// AuditRecord is the flow-side shape of one audit event. Metadata is built
// lazily so disabled auditing costs nothing.
type AuditRecord struct {
	Event     string
	Success   bool
	Identity  string
	Role      string
	ActorID   string
	SessionID string
	Err       error
	Metadata  func() map[string]string
}

func noopAudit(context.Context, AuditRecord) {}

func noopMetric(int) {}
