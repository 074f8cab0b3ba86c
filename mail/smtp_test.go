package mail

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPTransportBuildsMultipartMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotBody string
	)
	tr := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com", User: "u", Pass: "p", ReplyTo: "support@lernio.dev"})
	tr.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, string(msg)
		return nil
	}

	msg := Message{To: []string{"jane@x.com"}, Subject: "Héllo", HTML: "<p>hi</p>", Text: "hi"}
	err := tr.Deliver(context.Background(), Address{Name: "Lernio", Email: "noreply@lernio.dev"}, msg)
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@lernio.dev", gotFrom)
	assert.Equal(t, []string{"jane@x.com"}, gotTo)
	assert.Contains(t, gotBody, "MIME-Version: 1.0\r\n")
	assert.Contains(t, gotBody, `From: "Lernio" <noreply@lernio.dev>`)
	assert.Contains(t, gotBody, "Reply-To: support@lernio.dev")
	assert.Contains(t, gotBody, "multipart/alternative")
	assert.Contains(t, gotBody, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, gotBody, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, gotBody, "=?utf-8?q?")
	assert.Contains(t, gotBody, "@lernio.dev>")
}

func TestSMTPTransportHonoursCancelledContext(t *testing.T) {
	tr := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com"})
	called := false
	tr.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Deliver(ctx, Address{Email: "a@b.c"}, testMsg())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSMTPTransportReturnsOnDeadlineWhileRelayHangs(t *testing.T) {
	tr := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com"})
	release := make(chan struct{})
	defer close(release)
	tr.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tr.Deliver(ctx, Address{Email: "a@b.c"}, testMsg())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildMIMEPlainOnly(t *testing.T) {
	body := string(buildMIME(Address{Email: "a@b.c"}, Message{To: []string{"x@y.z"}, Subject: "s", Text: "plain"}, "", time.Now()))
	assert.Contains(t, body, "Content-Type: text/plain; charset=UTF-8")
	assert.False(t, strings.Contains(body, "multipart"))
}
