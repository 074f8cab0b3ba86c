package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 500 * time.Millisecond
)

// Config selects and configures the transport used by a Sender.
type Config struct {
	Provider       Provider
	From           Address
	SMTP           SMTPConfig
	SendGridAPIKey string

	// Attempts is the total number of delivery tries, not retries.
	Attempts  int
	BaseDelay time.Duration
}

// NewTransport builds the transport named by cfg.Provider.
func NewTransport(cfg Config, log *zap.Logger) (Transport, error) {
	switch cfg.Provider {
	case ProviderSMTP:
		if strings.TrimSpace(cfg.SMTP.Host) == "" {
			return nil, errors.New("mail: smtp provider requires a host")
		}
		return NewSMTPTransport(cfg.SMTP), nil
	case ProviderSendGrid:
		if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
			return nil, errors.New("mail: sendgrid provider requires an api key")
		}
		return NewSendGridTransport(cfg.SendGridAPIKey), nil
	case ProviderLog, "":
		return NewLogTransport(log), nil
	default:
		return nil, fmt.Errorf("mail: unknown provider %q", cfg.Provider)
	}
}

// Sender delivers messages through a Transport with bounded retries.
type Sender struct {
	transport Transport
	from      Address
	attempts  int
	baseDelay time.Duration
	log       *zap.Logger
}

func NewSender(transport Transport, cfg Config, log *zap.Logger) (*Sender, error) {
	if transport == nil {
		return nil, errors.New("mail: nil transport")
	}
	if strings.TrimSpace(cfg.From.Email) == "" {
		return nil, errors.New("mail: sender address required")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{
		transport: transport,
		from:      cfg.From,
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
		log:       log.Named("mail"),
	}, nil
}

// Send tries delivery up to the configured attempt count, sleeping
// baseDelay, 2*baseDelay, 4*baseDelay... between tries. Permanent errors
// and context cancellation stop the loop early.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	delay := s.baseDelay
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		start := time.Now()
		err := s.transport.Deliver(ctx, s.from, msg)
		if err == nil {
			s.log.Debug("mail delivered",
				zap.String("subject", msg.Subject),
				zap.Int("attempt", attempt),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
		lastErr = err

		s.log.Warn("mail delivery failed",
			zap.String("subject", msg.Subject),
			zap.Int("attempt", attempt),
			zap.Int("attempts", s.attempts),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		if errors.Is(err, ErrPermanent) || ctx.Err() != nil || attempt == s.attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("mail: send abandoned after %d attempt(s): %w", attempt, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}

	return fmt.Errorf("mail: send failed: %w", lastErr)
}
