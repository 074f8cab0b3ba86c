package gatekeeper

import (
	"context"
	"strings"
	"time"

	"github.com/lernio/gatekeeper/internal/flows"
	"github.com/lernio/gatekeeper/internal/rate"
	"github.com/lernio/gatekeeper/mail"
	"github.com/lernio/gatekeeper/session"
)

// Account roles. Each role owns its own account table, cookie and session
// namespace.
const (
	RoleUser          = "USER"
	RoleAdmin         = "ADMIN"
	RoleAdministrator = "ADMINISTRATOR"
)

// Roles lists every known role.
var Roles = []string{RoleUser, RoleAdmin, RoleAdministrator}

// ValidRole reports whether role is one of the known roles (exact match).
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleAdministrator:
		return true
	}
	return false
}

// ParseRole accepts a role in any letter case, as it appears in URLs.
func ParseRole(s string) (string, error) {
	role := strings.ToUpper(strings.TrimSpace(s))
	if !ValidRole(role) {
		return "", ErrUnknownRole
	}
	return role, nil
}

// Rate limit policy classes.
const (
	PolicyDefault = rate.PolicyDefault
	PolicyStrict  = rate.PolicyStrict
	PolicyAuth    = rate.PolicyAuth
)

// Admin request statuses.
const (
	AdminRequestPending  = flows.AdminRequestPending
	AdminRequestApproved = flows.AdminRequestApproved
	AdminRequestRejected = flows.AdminRequestRejected
)

type (
	Session        = session.Session
	SessionRequest = flows.SessionRequest
	SessionResult  = flows.SessionResult

	RateLimitPolicy   = rate.Policy
	RateLimitRule     = rate.Rule
	RateLimitDecision = rate.Decision

	Account      = flows.LoginAccount
	LoginRequest = flows.LoginRequest
	LoginResult  = flows.LoginResult

	AdminRequest           = flows.AdminRequestRecord
	AdminRequestInput      = flows.AdminRequestInput
	AdminRequestFilter     = flows.AdminRequestFilter
	AdminRequestPage       = flows.AdminRequestPage
	AdminRequestCounts     = flows.AdminRequestCounts
	AdminApproval          = flows.AdminApproval
	AdminRequestRepository = flows.AdminRequestRepository
)

// ErrAccountNotFound must be returned (or wrapped) by AccountStore
// implementations for an email with no account in the role's table.
var ErrAccountNotFound = flows.ErrAccountNotFound

// AccountStore resolves and updates credentials per role.
type AccountStore interface {
	FindAccount(ctx context.Context, role, email string) (Account, error)
	UpdatePasswordHash(ctx context.Context, role, email, hash string) error
}

// Mailer delivers one message synchronously. *mail.Sender satisfies it.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// TokenPayload is the verified content of a bearer token.
type TokenPayload struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Role       string    `json:"role"`
	SessionID  string    `json:"sessionId"`
	AvatarLink string    `json:"avatarLink,omitempty"`
	ExpiresAt  time.Time `json:"-"`
}

// Overall health values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// Per-service health values.
const (
	HealthConnected    = "connected"
	HealthDisconnected = "disconnected"
	HealthDisabled     = "disabled"
)

// HealthReport is the payload of the liveness endpoint.
type HealthReport struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Uptime    float64        `json:"uptime"`
	Services  HealthServices `json:"services"`
}

// HealthServices reports each backing store separately.
type HealthServices struct {
	PrimaryStore string `json:"primaryStore"`
	CacheStore   string `json:"cacheStore"`
}

// Healthy reports whether every configured service answered.
func (h HealthReport) Healthy() bool {
	return h.Status == HealthOK
}
