package flows

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lernio/gatekeeper/session"
)

// SessionStore is the subset of session.Store used by session flows.
type SessionStore interface {
	Save(ctx context.Context, sess *session.Session, ttl time.Duration) error
	SaveIfBelow(ctx context.Context, sess *session.Session, ttl time.Duration, limit int) (bool, int, error)
	List(ctx context.Context, role, identity string) ([]*session.Session, error)
}

// SessionRequest carries the attributes of a new login.
type SessionRequest struct {
	Identity  string
	Role      string
	Device    string
	IP        string
	UserAgent string
	Location  string
}

// SessionResult is the outcome of a create attempt. When LimitExceeded is
// set, Session is nil, nothing was written, and ActiveSessions lists what
// the caller must revoke before retrying.
type SessionResult struct {
	Session        *session.Session
	LimitExceeded  bool
	ActiveSessions []*session.Session
}

type SessionMetrics struct {
	Created       int
	LimitExceeded int
}

type SessionEvents struct {
	Created       string
	LimitExceeded string
}

type SessionErrors struct {
	EngineNotReady error
	UnknownRole    error
	InvalidInput   error
}

// SessionDeps captures session creation dependencies.
type SessionDeps struct {
	Store       SessionStore
	TTL         time.Duration
	AtomicLimit bool

	LimitFor       func(role string) int
	NewSessionID   func() (string, error)
	DescribeDevice func(userAgent string) string
	Now            func() time.Time
	MapStoreError  func(error) error

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)

	Metrics SessionMetrics
	Events  SessionEvents
	Errors  SessionErrors
}

func normalizeSessionDeps(deps *SessionDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.DescribeDevice == nil {
		deps.DescribeDevice = func(string) string { return "" }
	}
}

// RunCreateSession persists a new session unless (role, identity) already
// holds its limit of live sessions. Existing sessions are never evicted.
//
// Without AtomicLimit the count and the write are separate round trips, so
// two concurrent creates at limit-1 may both succeed.
func RunCreateSession(ctx context.Context, req SessionRequest, deps SessionDeps) (*SessionResult, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil || deps.LimitFor == nil || deps.NewSessionID == nil {
		return nil, deps.Errors.EngineNotReady
	}

	req.Identity = strings.TrimSpace(req.Identity)
	if req.Identity == "" {
		return nil, deps.Errors.InvalidInput
	}
	limit := deps.LimitFor(req.Role)
	if limit <= 0 {
		return nil, deps.Errors.UnknownRole
	}

	sid, err := deps.NewSessionID()
	if err != nil {
		return nil, err
	}
	device := strings.TrimSpace(req.Device)
	if device == "" {
		device = deps.DescribeDevice(req.UserAgent)
	}
	now := deps.Now().UTC()
	sess := &session.Session{
		SessionID:    sid,
		Identity:     req.Identity,
		Role:         req.Role,
		Device:       device,
		IP:           req.IP,
		UserAgent:    req.UserAgent,
		Location:     req.Location,
		LoginAt:      now,
		LastActiveAt: now,
	}

	var active []*session.Session
	if deps.AtomicLimit {
		saved, _, err := deps.Store.SaveIfBelow(ctx, sess, deps.TTL, limit)
		if err != nil {
			return nil, deps.MapStoreError(err)
		}
		active, err = deps.Store.List(ctx, req.Role, req.Identity)
		if err != nil {
			return nil, deps.MapStoreError(err)
		}
		if !saved {
			return limitExceeded(ctx, req, limit, active, deps), nil
		}
	} else {
		active, err = deps.Store.List(ctx, req.Role, req.Identity)
		if err != nil {
			return nil, deps.MapStoreError(err)
		}
		if len(active) >= limit {
			return limitExceeded(ctx, req, limit, active, deps), nil
		}
		if err := deps.Store.Save(ctx, sess, deps.TTL); err != nil {
			return nil, deps.MapStoreError(err)
		}
		active = append(active, sess)
	}

	sortNewestFirst(active)
	deps.MetricInc(deps.Metrics.Created)
	deps.EmitAudit(ctx, AuditRecord{
		Event:     deps.Events.Created,
		Success:   true,
		Identity:  req.Identity,
		Role:      req.Role,
		SessionID: sid,
		Metadata: func() map[string]string {
			return map[string]string{"device": device}
		},
	})
	return &SessionResult{
		Session:        sess,
		ActiveSessions: active,
	}, nil
}

func limitExceeded(ctx context.Context, req SessionRequest, limit int, active []*session.Session, deps SessionDeps) *SessionResult {
	sortNewestFirst(active)
	deps.MetricInc(deps.Metrics.LimitExceeded)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.LimitExceeded,
		Identity: req.Identity,
		Role:     req.Role,
		Metadata: func() map[string]string {
			return map[string]string{
				"limit":  strconv.Itoa(limit),
				"active": strconv.Itoa(len(active)),
			}
		},
	})
	return &SessionResult{
		LimitExceeded:  true,
		ActiveSessions: active,
	}
}

func sortNewestFirst(list []*session.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LoginAt.After(list[j].LoginAt)
	})
}
