package gatekeeper

import (
	"context"
	"errors"
	"fmt"
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

// Engine owns every session, rate limit, token and admin request operation.
// It is safe for concurrent use once built.
type Engine struct {
	config Config
	log    *zap.Logger
	redis  redis.UniversalClient

	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	resetStore   *stores.PasswordResetStore
	audit        *audit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	notifier     *notify.Queue

	accounts      AccountStore
	adminRequests AdminRequestRepository
	mailer        Mailer
	databasePing  func(context.Context) error

	startedAt time.Time
	now       func() time.Time
}

// Close drains the notification queue, then the audit dispatcher. The
// injected Redis and database handles are owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.notifier != nil {
		e.notifier.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped reports audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotificationsDropped reports queued emails dropped because the buffer
// was full or the caller gave up waiting.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil || e.notifier == nil {
		return 0
	}
	_, _, dropped := e.notifier.Stats()
	return dropped
}

// NotificationsPending reports emails waiting for a notification worker.
func (e *Engine) NotificationsPending() int {
	if e == nil || e.notifier == nil {
		return 0
	}
	return e.notifier.Pending()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) warn(msg string, keysAndValues ...any) {
	if e == nil || e.log == nil {
		return
	}
	e.log.Sugar().Warnw(msg, keysAndValues...)
}

// mapStoreError wraps key-value failures in ErrStoreUnavailable and passes
// context cancellation through untouched.
func (e *Engine) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrStoreUnavailable):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (e *Engine) clock() time.Time {
	if e == nil || e.now == nil {
		return time.Now()
	}
	return e.now()
}
