package gatekeeper

import (
	"context"
	"errors"
	"time"

	"github.com/lernio/gatekeeper/internal/audit"
	"github.com/lernio/gatekeeper/internal/notify"
	"github.com/lernio/gatekeeper/internal/rate"
	"github.com/lernio/gatekeeper/internal/stores"
	"github.com/lernio/gatekeeper/jwt"
	"github.com/lernio/gatekeeper/password"
	"github.com/lernio/gatekeeper/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine from a Config and injected service handles.
//
// A Builder is configured once during start-up; Build may be called only once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	log    *zap.Logger

	accounts      AccountStore
	adminRequests AdminRequestRepository
	mailer        Mailer
	auditSinks    []AuditSink
	databasePing  func(context.Context) error

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Start from DefaultConfig and
// override fields to keep defaults for the rest.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the key-value client shared by sessions, rate limiting and
// password reset tokens. It is required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger used for infra warnings, the notification
// queue and (unless WithAuditSink is used) audit events.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithAccounts sets the credential store used by Login and password reset.
func (b *Builder) WithAccounts(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithAdminRequests sets the relational repository behind the invite
// request workflow.
func (b *Builder) WithAdminRequests(repo AdminRequestRepository) *Builder {
	b.adminRequests = repo
	return b
}

// WithMailer sets the synchronous mail sender. The engine wraps it in an
// asynchronous queue for workflow notifications.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets where audit events go. Several sinks each receive
// every event, in the order given.
func (b *Builder) WithAuditSink(sinks ...AuditSink) *Builder {
	b.auditSinks = append(b.auditSinks, sinks...)
	return b
}

// WithDatabasePing sets the primary store probe reported by Health.
func (b *Builder) WithDatabasePing(ping func(context.Context) error) *Builder {
	b.databasePing = ping
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. Components
// whose dependency was not supplied report ErrEngineNotReady when used.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	engine := &Engine{
		config:        cloneConfig(cfg),
		log:           log.Named("gatekeeper"),
		redis:         b.redis,
		accounts:      b.accounts,
		adminRequests: b.adminRequests,
		mailer:        b.mailer,
		databasePing:  b.databasePing,
		startedAt:     time.Now(),
		now:           time.Now,
	}

	// -------- KEY-VALUE STORES --------
	engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		Prefix: cfg.RateLimit.RedisPrefix,
		Rules:  cfg.RateLimit.Rules,
	})
	if cfg.PasswordReset.Enabled {
		engine.resetStore = stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix)
	}

	// -------- OBSERVABILITY --------
	sink := audit.Fanout(b.auditSinks...)
	if len(b.auditSinks) == 0 {
		sink = audit.NewZapSink(log)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink, log)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- CREDENTIALS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- NOTIFICATIONS --------
	if b.mailer != nil && cfg.Notify.Enabled {
		engine.notifier = notify.New(notify.Config{
			Workers:    cfg.Notify.Workers,
			BufferSize: cfg.Notify.BufferSize,
			JobTimeout: cfg.Notify.JobTimeout,
			DropIfFull: cfg.Notify.DropIfFull,
		}, b.mailer, notify.Hooks{
			OnDelivered: func(notify.Job) { engine.metricInc(MetricNotificationDelivered) },
			OnFailed:    func(notify.Job, error) { engine.metricInc(MetricNotificationFailed) },
		}, log)
	}

	b.built = true

	return engine, nil
}
