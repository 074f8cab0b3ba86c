package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lernio/gatekeeper/internal/flows"
	"github.com/lernio/gatekeeper/internal/notify"
	"github.com/lernio/gatekeeper/mail"
	"go.uber.org/zap"
)

const (
	notifyKindAdminSubmitted = "admin_request_submitted"
	notifyKindAdminApproved  = "admin_request_approved"
	notifyKindAdminRejected  = "admin_request_rejected"
	notifyKindPasswordReset  = "password_reset"
	notifyKindGeneric        = "notification"
)

// enqueue schedules msg on the notification queue. Failures are logged and
// counted, never returned: the business operation has already committed.
func (e *Engine) enqueue(ctx context.Context, kind string, msg mail.Message, buildErr error) {
	if buildErr != nil {
		e.log.Error("notification render failed", zap.String("kind", kind), zap.Error(buildErr))
		return
	}
	if e.notifier == nil {
		e.warn("notification skipped, no mailer configured", "kind", kind)
		return
	}
	if _, err := e.notifier.Enqueue(ctx, notify.Job{Kind: kind, Message: msg}); err != nil {
		e.metricInc(MetricNotificationDropped)
		e.warn("notification not queued",
			"kind", kind,
			"request_id", RequestIDFromContext(ctx),
			"error", err.Error(),
		)
		return
	}
	e.metricInc(MetricNotificationEnqueued)
}

func (e *Engine) notifyAdminSubmitted(ctx context.Context, req AdminRequest) {
	recipients := e.config.AdminRequest.NotifyEmails
	if len(recipients) == 0 {
		return
	}
	var body strings.Builder
	fmt.Fprintf(&body, "**%s** (%s) asked for admin access.\n\n", req.FullName, req.Email)
	if r := strings.TrimSpace(req.Reason); r != "" {
		fmt.Fprintf(&body, "> %s\n\n", strings.ReplaceAll(r, "\n", "\n> "))
	}
	body.WriteString("Review it in the administrator dashboard.")

	for _, to := range recipients {
		msg, err := mail.NotificationMessage(to, "New admin access request", body.String())
		e.enqueue(ctx, notifyKindAdminSubmitted, msg, err)
	}
}

func (e *Engine) notifyAdminApproved(ctx context.Context, req AdminRequest, tempPassword string) {
	loginURL := e.config.appURL(e.config.AdminRequest.LoginPath, nil)
	msg, err := mail.AdminApprovedMessage(req.Email, req.FullName, tempPassword, loginURL)
	e.enqueue(ctx, notifyKindAdminApproved, msg, err)
}

func (e *Engine) notifyAdminRejected(ctx context.Context, req AdminRequest, reason string) {
	msg, err := mail.AdminRejectedMessage(req.Email, req.FullName, reason)
	e.enqueue(ctx, notifyKindAdminRejected, msg, err)
}

func (e *Engine) sendResetLink(ctx context.Context, account Account, token string, ttl time.Duration) {
	link := e.config.appURL(e.config.PasswordReset.LinkPath, url.Values{"token": {token}})
	msg, err := mail.PasswordResetMessage(account.Email, account.FullName, account.Role, link, ttl)
	e.enqueue(ctx, notifyKindPasswordReset, msg, err)
}

// Notify queues a generic notification whose body is markdown.
func (e *Engine) Notify(ctx context.Context, to, title, markdown string) error {
	if e == nil || e.notifier == nil {
		return ErrMailUnavailable
	}
	msg, err := mail.NotificationMessage(strings.TrimSpace(to), title, markdown)
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return NewValidationError(map[string]string{"to": err.Error()})
	}
	if _, err := e.notifier.Enqueue(ctx, notify.Job{Kind: notifyKindGeneric, Message: msg}); err != nil {
		e.metricInc(MetricNotificationDropped)
		return fmt.Errorf("%w: %w", ErrMailUnavailable, err)
	}
	e.metricInc(MetricNotificationEnqueued)
	return nil
}

// SendTestMail delivers a test message synchronously so the caller learns
// whether the transport works.
func (e *Engine) SendTestMail(ctx context.Context, actor *TokenPayload, to string) error {
	if err := requireAdministrator(actor); err != nil {
		return err
	}
	if e == nil || e.mailer == nil {
		return ErrMailUnavailable
	}
	to = strings.TrimSpace(to)
	if to == "" {
		to = actor.Email
	}
	msg, err := mail.TestMessage(to, e.clock())
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return NewValidationError(map[string]string{"to": "invalid email address"})
	}

	err = e.mailer.Send(ctx, msg)
	e.emitFlowAudit(ctx, flows.AuditRecord{
		Event:    auditEventTestMailSent,
		Success:  err == nil,
		Identity: to,
		Role:     actor.Role,
		ActorID:  actor.UserID,
		Err:      err,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrMailUnavailable, err)
	}
	return nil
}
