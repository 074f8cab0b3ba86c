package mail

import (
	"context"
	"errors"
	"strings"
)

// Provider selects a Transport implementation.
type Provider string

const (
	ProviderSMTP     Provider = "smtp"
	ProviderSendGrid Provider = "sendgrid"
	ProviderLog      Provider = "log"
)

var (
	// ErrNoRecipients is returned for a message with an empty To list.
	ErrNoRecipients = errors.New("mail: no recipients")
	// ErrPermanent marks failures that retrying cannot fix.
	ErrPermanent = errors.New("mail: permanent failure")
)

// Message is a single email to send.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Validate checks that m can be handed to a transport.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" || !strings.Contains(to, "@") {
			return errors.New("mail: invalid recipient " + to)
		}
		if strings.ContainsAny(to, "\r\n") {
			return errors.New("mail: invalid recipient")
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mail: empty subject")
	}
	if strings.ContainsAny(m.Subject, "\r\n") {
		return errors.New("mail: subject contains line break")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("mail: empty body")
	}
	return nil
}

// Transport delivers one message. Implementations must be safe for
// concurrent use.
type Transport interface {
	Deliver(ctx context.Context, from Address, msg Message) error
}

// Address is a sender identity.
type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return `"` + strings.ReplaceAll(a.Name, `"`, "") + `" <` + a.Email + `>`
}
