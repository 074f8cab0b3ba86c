package gatekeeper

import (
	"context"
	"errors"
	"strconv"

	"github.com/lernio/gatekeeper/internal"
	"github.com/lernio/gatekeeper/internal/flows"
	"github.com/lernio/gatekeeper/session"
)

// CreateSession records a new login for (req.Role, req.Identity).
//
// When the identity already holds Session.Limits[role] live sessions,
// nothing is written and the result has LimitExceeded set together with
// the active sessions, newest login first. Existing sessions are never
// evicted. IP and UserAgent default to the values attached to ctx.
func (e *Engine) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	if req.IP == "" {
		req.IP = ClientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}
	if !ValidRole(req.Role) {
		return nil, ErrUnknownRole
	}
	req.Identity = normalizeIdentity(req.Identity)
	return flows.RunCreateSession(ctx, req, e.sessionFlowDeps())
}

// GetActiveSessions lists the live sessions of (role, identity), newest
// login first.
func (e *Engine) GetActiveSessions(ctx context.Context, identity, role string) ([]*Session, error) {
	if err := e.checkSessionArgs(identity, role); err != nil {
		return nil, err
	}
	list, err := e.sessionStore.List(ctx, role, normalizeIdentity(identity))
	if err != nil {
		return nil, e.mapStoreError(err)
	}
	return list, nil
}

// CountActiveSessions returns the number of live sessions of (role, identity).
func (e *Engine) CountActiveSessions(ctx context.Context, identity, role string) (int, error) {
	if err := e.checkSessionArgs(identity, role); err != nil {
		return 0, err
	}
	n, err := e.sessionStore.Count(ctx, role, normalizeIdentity(identity))
	if err != nil {
		return 0, e.mapStoreError(err)
	}
	return n, nil
}

// ValidateSession reports whether the session key exists. The payload is
// not read.
func (e *Engine) ValidateSession(ctx context.Context, sessionID, identity, role string) (bool, error) {
	if err := e.checkSessionArgs(identity, role); err != nil {
		return false, err
	}
	if !internal.ValidSessionID(sessionID) {
		return false, nil
	}
	ok, err := e.sessionStore.Exists(ctx, role, normalizeIdentity(identity), sessionID)
	if err != nil {
		return false, e.mapStoreError(err)
	}
	return ok, nil
}

// UpdateSessionActivity refreshes the session TTL. lastActiveAt is only
// rewritten when Session.RewriteLastActive is set. A missing session yields
// ErrSessionNotFound.
func (e *Engine) UpdateSessionActivity(ctx context.Context, sessionID, identity, role string) error {
	if err := e.checkSessionArgs(identity, role); err != nil {
		return err
	}
	if !internal.ValidSessionID(sessionID) {
		return ErrSessionNotFound
	}
	identity = normalizeIdentity(identity)

	var (
		ok  bool
		err error
	)
	if e.config.Session.RewriteLastActive {
		ok, err = e.sessionStore.TouchAndStamp(ctx, role, identity, sessionID, e.config.Session.TTL, e.clock().UTC())
	} else {
		ok, err = e.sessionStore.Touch(ctx, role, identity, sessionID, e.config.Session.TTL)
	}
	if err != nil {
		return e.mapStoreError(err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// InvalidateSession deletes one session. Deleting a missing session yields
// ErrSessionNotFound.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID, identity, role string) error {
	if err := e.checkSessionArgs(identity, role); err != nil {
		return err
	}
	identity = normalizeIdentity(identity)
	if !internal.ValidSessionID(sessionID) {
		return ErrSessionNotFound
	}

	deleted, err := e.sessionStore.Delete(ctx, role, identity, sessionID)
	if err != nil {
		err = e.mapStoreError(err)
		e.emitAudit(ctx, auditEventSessionInvalidated, false, identity, role, sessionID, err, nil)
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionInvalidated, true, identity, role, sessionID, nil, nil)
	return nil
}

// InvalidateAllSessions deletes every session of (role, identity) and
// returns how many were removed.
func (e *Engine) InvalidateAllSessions(ctx context.Context, identity, role string) (int, error) {
	if err := e.checkSessionArgs(identity, role); err != nil {
		return 0, err
	}
	identity = normalizeIdentity(identity)

	n, err := e.sessionStore.DeleteAll(ctx, role, identity)
	if err != nil {
		err = e.mapStoreError(err)
		e.emitAudit(ctx, auditEventSessionInvalidatedAll, false, identity, role, "", err, nil)
		return 0, err
	}

	e.metricInc(MetricSessionInvalidatedAll)
	e.emitAudit(ctx, auditEventSessionInvalidatedAll, true, identity, role, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(n)}
	})
	return n, nil
}

func (e *Engine) checkSessionArgs(identity, role string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if !ValidRole(role) {
		return ErrUnknownRole
	}
	if normalizeIdentity(identity) == "" {
		return NewValidationError(map[string]string{"identity": "required"})
	}
	return nil
}

func normalizeIdentity(identity string) string {
	return flows.NormalizeEmail(identity)
}

func (e *Engine) sessionFlowDeps() flows.SessionDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := flows.SessionDeps{
		TTL:            cfg.Session.TTL,
		AtomicLimit:    cfg.Session.AtomicLimit,
		LimitFor:       cfg.sessionLimit,
		NewSessionID:   internal.NewSessionID,
		DescribeDevice: internal.DescribeDevice,
		Now:            e.clock,
		MapStoreError:  e.mapStoreError,
		MetricInc:      e.flowMetricInc,
		EmitAudit:      e.emitFlowAudit,
		Metrics: flows.SessionMetrics{
			Created:       int(MetricSessionCreated),
			LimitExceeded: int(MetricSessionLimitExceeded),
		},
		Events: flows.SessionEvents{
			Created:       auditEventSessionCreated,
			LimitExceeded: auditEventSessionLimitExceeded,
		},
		Errors: flows.SessionErrors{
			EngineNotReady: ErrEngineNotReady,
			UnknownRole:    ErrUnknownRole,
			InvalidInput:   NewValidationError(map[string]string{"identity": "required"}),
		},
	}
	if e != nil && e.sessionStore != nil {
		deps.Store = e.sessionStore
	}
	return deps
}

// sessionExists treats a vanished key as absent rather than an error.
func (e *Engine) sessionExists(ctx context.Context, role, identity, sessionID string) (bool, error) {
	ok, err := e.sessionStore.Exists(ctx, role, identity, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return false, nil
		}
		return false, e.mapStoreError(err)
	}
	return ok, nil
}
