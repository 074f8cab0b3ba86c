package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig holds the credentials of an SMTP relay.
type SMTPConfig struct {
	Host    string
	Port    int
	User    string
	Pass    string
	ReplyTo string
}

// SMTPTransport sends through an SMTP relay with PLAIN auth.
type SMTPTransport struct {
	cfg SMTPConfig

	// send is smtp.SendMail outside tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPTransport{cfg: cfg, send: smtp.SendMail}
}

// Deliver sends msg. net/smtp has no context support, so ctx is only checked
// before the dial; a hung relay is bounded by the caller's per-job timeout
// running this on its own goroutine.
func (t *SMTPTransport) Deliver(ctx context.Context, from Address, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	var auth smtp.Auth
	if t.cfg.User != "" {
		auth = smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)
	}

	body := buildMIME(from, msg, t.cfg.ReplyTo, time.Now())

	done := make(chan error, 1)
	go func() {
		done <- t.send(addr, auth, from.Email, msg.To, body)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMIME(from Address, msg Message, replyTo string, now time.Time) []byte {
	var body bytes.Buffer
	boundary := "gk-" + uuid.NewString()

	header := func(k, v string) {
		body.WriteString(k)
		body.WriteString(": ")
		body.WriteString(v)
		body.WriteString("\r\n")
	}

	header("MIME-Version", "1.0")
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+domainOf(from.Email)+">")
	header("From", from.String())
	header("To", strings.Join(msg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	if replyTo != "" {
		header("Reply-To", replyTo)
	}

	switch {
	case msg.HTML != "" && msg.Text != "":
		header("Content-Type", `multipart/alternative; boundary="`+boundary+`"`)
		body.WriteString("\r\n")
		writePart(&body, boundary, "text/plain", msg.Text)
		writePart(&body, boundary, "text/html", msg.HTML)
		body.WriteString("--" + boundary + "--\r\n")
	case msg.HTML != "":
		header("Content-Type", "text/html; charset=UTF-8")
		header("Content-Transfer-Encoding", "quoted-printable")
		body.WriteString("\r\n")
		writeQP(&body, msg.HTML)
	default:
		header("Content-Type", "text/plain; charset=UTF-8")
		header("Content-Transfer-Encoding", "quoted-printable")
		body.WriteString("\r\n")
		writeQP(&body, msg.Text)
	}

	return body.Bytes()
}

func writePart(buf *bytes.Buffer, boundary, contentType, content string) {
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	writeQP(buf, content)
	buf.WriteString("\r\n")
}

func writeQP(buf *bytes.Buffer, content string) {
	w := quotedprintable.NewWriter(buf)
	_, _ = w.Write([]byte(content))
	_ = w.Close()
}

func domainOf(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}
