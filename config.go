package gatekeeper

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lernio/gatekeeper/internal/rate"
	"github.com/lernio/gatekeeper/password"
)

// Config holds the engine semantics. Process concerns (ports, DSNs, mail
// transport credentials) live in internal/config.
//
// Config values are copied into the Engine at Build time and treated as
// immutable afterwards.
type Config struct {
	Session       SessionConfig
	RateLimit     RateLimitConfig
	Token         TokenConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	AdminRequest  AdminRequestConfig
	Notify        NotifyConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	App           AppConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session records and per-role limits.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration

	// Limits is the maximum number of live sessions per (role, identity).
	Limits map[string]int

	// AtomicLimit performs the limit check and the write in one Lua script.
	// Off by default: two concurrent logins at limit-1 may both succeed.
	AtomicLimit bool

	// RewriteLastActive makes UpdateSessionActivity rewrite lastActiveAt in
	// addition to refreshing the TTL.
	RewriteLastActive bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the fixed-window limiter.
type RateLimitConfig struct {
	Enabled     bool
	RedisPrefix string
	Rules       map[RateLimitPolicy]RateLimitRule

	// FailOpen allows requests through when the counter store is down.
	FailOpen bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls bearer token issuance.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters and the length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	MinPasswordBytes int
	MaxPasswordBytes int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls reset tokens and the emailed link.
type PasswordResetConfig struct {
	Enabled     bool
	RedisPrefix string
	TTL         time.Duration

	// LinkPath is joined to App.BaseURL; the token is added as ?token=.
	LinkPath string
}

/*
====================================
ADMIN REQUEST CONFIG
====================================
*/

// AdminRequestConfig controls the invite request workflow.
type AdminRequestConfig struct {
	TempPasswordLength int
	LoginPath          string
	DefaultPageSize    int
	MaxPageSize        int

	// NotifyEmails receive a notice for every new request. Empty disables it.
	NotifyEmails []string
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig sizes the asynchronous email queue.
type NotifyConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
	JobTimeout time.Duration
	DropIfFull bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls audit dispatching.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
APP CONFIG
====================================
*/

// AppConfig carries deployment facts used in emails and cookies.
type AppConfig struct {
	Name       string
	BaseURL    string
	Production bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the stock configuration. Token.PrivateKey is left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Session: SessionConfig{
			RedisPrefix: "session",
			TTL:         7 * 24 * time.Hour,
			Limits: map[string]int{
				RoleUser:          5,
				RoleAdmin:         3,
				RoleAdministrator: 2,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			RedisPrefix: rate.DefaultPrefix,
			Rules:       rate.DefaultRules(),
			FailOpen:    true,
		},
		Token: TokenConfig{
			TTL:           7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "lernio",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			UpgradeOnLogin:   true,
			MinPasswordBytes: password.MinPasswordBytes,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:     true,
			RedisPrefix: "password_reset",
			TTL:         15 * time.Minute,
			LinkPath:    "/reset-password",
		},
		AdminRequest: AdminRequestConfig{
			TempPasswordLength: 16,
			LoginPath:          "/admin/login",
			DefaultPageSize:    20,
			MaxPageSize:        100,
		},
		Notify: NotifyConfig{
			Enabled:    true,
			Workers:    2,
			BufferSize: 256,
			JobTimeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		App: AppConfig{
			Name:    "Lernio",
			BaseURL: "http://localhost:3000",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Session.Limits != nil {
		out.Session.Limits = make(map[string]int, len(cfg.Session.Limits))
		for k, v := range cfg.Session.Limits {
			out.Session.Limits[k] = v
		}
	}
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[RateLimitPolicy]RateLimitRule, len(cfg.RateLimit.Rules))
		for k, v := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[k] = v
		}
	}
	out.AdminRequest.NotifyEmails = append([]string(nil), cfg.AdminRequest.NotifyEmails...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints. Build calls it.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	for _, role := range Roles {
		if c.Session.Limits[role] <= 0 {
			return fmt.Errorf("Session limit for %s must be > 0", role)
		}
	}
	for role := range c.Session.Limits {
		if !ValidRole(role) {
			return fmt.Errorf("Session limit configured for unknown role %q", role)
		}
	}

	// Rate limit
	if c.RateLimit.Enabled {
		for _, p := range []RateLimitPolicy{PolicyDefault, PolicyStrict, PolicyAuth} {
			r, ok := c.RateLimit.Rules[p]
			if !ok {
				continue
			}
			if r.Max <= 0 || r.Window <= 0 {
				return fmt.Errorf("RateLimit rule %q must have Max > 0 and Window > 0", p)
			}
		}
	}

	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinPasswordBytes < password.MinPasswordBytes {
		return fmt.Errorf("Password MinPasswordBytes must be >= %d", password.MinPasswordBytes)
	}
	if c.Password.MaxPasswordBytes < c.Password.MinPasswordBytes {
		return errors.New("Password MaxPasswordBytes must be >= MinPasswordBytes")
	}

	// Password reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.TTL <= 0 {
			return errors.New("PasswordReset TTL must be > 0")
		}
		if strings.TrimSpace(c.PasswordReset.RedisPrefix) == "" {
			return errors.New("PasswordReset RedisPrefix must not be empty")
		}
	}

	// Admin requests
	if c.AdminRequest.TempPasswordLength < password.MinTemporaryLength {
		return fmt.Errorf("AdminRequest TempPasswordLength must be >= %d", password.MinTemporaryLength)
	}
	if c.AdminRequest.DefaultPageSize <= 0 || c.AdminRequest.MaxPageSize < c.AdminRequest.DefaultPageSize {
		return errors.New("AdminRequest page sizes must satisfy 0 < DefaultPageSize <= MaxPageSize")
	}

	// Notify / audit
	if c.Notify.Enabled && c.Notify.BufferSize <= 0 {
		return errors.New("Notify BufferSize must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// App
	if c.App.BaseURL != "" {
		u, err := url.Parse(c.App.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("App BaseURL must be an absolute URL")
		}
	}

	return nil
}

// sessionLimit returns the configured limit for role, zero when unknown.
func (c *Config) sessionLimit(role string) int {
	if !ValidRole(role) {
		return 0
	}
	return c.Session.Limits[role]
}

// appURL joins path to App.BaseURL.
func (c *Config) appURL(path string, query url.Values) string {
	base := strings.TrimRight(c.App.BaseURL, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	out := base + path
	if len(query) > 0 {
		out += "?" + query.Encode()
	}
	return out
}
