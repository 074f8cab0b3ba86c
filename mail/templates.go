package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// Brand is the product name used in subjects and footers.
const Brand = "Lernio"

// Raw HTML in markdown is escaped (goldmark's default without WithUnsafe).
var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

const layoutHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta http-equiv="Content-Type" content="text/html; charset=UTF-8" /></head>
<body style="font-family:ui-sans-serif,system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
{{template "content" .}}
<hr style="border:none;border-top:1px solid #eaeaea;margin:26px 0" />
<p style="font-size:11px;color:#9ca3af;text-align:center">This message was sent automatically. Please do not reply.<br />&copy;{{year}} {{brand}}</p>
</div>
</body>
</html>`

const otpHTML = `{{define "content"}}
<h2 style="color:#111">Your verification code</h2>
<p>Use the code below to continue. It expires in {{.ExpiresIn}}.</p>
<p style="font-size:28px;letter-spacing:6px;font-weight:700;text-align:center;margin:24px 0">{{.Code}}</p>
<p style="color:#6b7280;font-size:12px">If you did not request this code you can ignore this email.</p>
{{end}}`

const otpText = `Your {{brand}} verification code is {{.Code}}.
It expires in {{.ExpiresIn}}.

If you did not request this code you can ignore this email.
`

const resetHTML = `{{define "content"}}
<h2 style="color:#111">Reset your password</h2>
<p>Hi {{.Name}},</p>
<p>We received a request to reset the password of your {{.Role}} account. The link is valid for {{.ExpiresIn}} and can be used once.</p>
<p style="margin:24px 0"><a href="{{.Link}}" style="background:#4f46e5;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px">Choose a new password</a></p>
<p style="color:#6b7280;font-size:12px">If you did not ask for a reset, no action is needed.</p>
{{end}}`

const resetText = `Hi {{.Name}},

We received a request to reset the password of your {{.Role}} account.
Open this link within {{.ExpiresIn}} to choose a new password:

{{.Link}}

If you did not ask for a reset, no action is needed.
`

const notificationHTML = `{{define "content"}}
<h2 style="color:#111">{{.Title}}</h2>
<div style="font-size:14px;line-height:22px;color:#111">{{.Body}}</div>
{{end}}`

const approvedHTML = `{{define "content"}}
<h2 style="color:#111">Your admin access was approved</h2>
<p>Hi {{.FullName}},</p>
<p>Your request for admin access to {{brand}} has been approved. Sign in with the temporary password below; you will be asked to change it.</p>
<table role="presentation" style="background:#f3f4f6;border-radius:8px;padding:12px 16px;margin:16px 0">
<tr><td style="padding:4px 12px 4px 0;color:#6b7280">Email</td><td><strong>{{.Email}}</strong></td></tr>
<tr><td style="padding:4px 12px 4px 0;color:#6b7280">Temporary password</td><td><code style="font-size:16px">{{.TemporaryPassword}}</code></td></tr>
</table>
<p style="margin:24px 0"><a href="{{.LoginURL}}" style="background:#16a34a;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px">Sign in</a></p>
{{end}}`

const approvedText = `Hi {{.FullName}},

Your request for admin access to {{brand}} has been approved.

Email: {{.Email}}
Temporary password: {{.TemporaryPassword}}

Sign in at {{.LoginURL}} and change the password when prompted.
`

const rejectedHTML = `{{define "content"}}
<h2 style="color:#111">Your admin access request</h2>
<p>Hi {{.FullName}},</p>
<p>Thank you for your interest. Your request for admin access to {{brand}} was not approved.</p>
{{if .Reason}}<p style="background:#f3f4f6;border-radius:8px;padding:12px 16px"><strong>Reason:</strong> {{.Reason}}</p>{{end}}
<p style="color:#6b7280;font-size:12px">If you believe this is a mistake, please contact support.</p>
{{end}}`

const rejectedText = `Hi {{.FullName}},

Thank you for your interest. Your request for admin access to {{brand}} was not approved.
{{if .Reason}}
Reason: {{.Reason}}
{{end}}
If you believe this is a mistake, please contact support.
`

const testHTML = `{{define "content"}}
<h2 style="color:#111">Test email</h2>
<p>This is a test message sent at {{.SentAt}}. If you can read it, outbound mail is configured correctly.</p>
{{end}}`

const testText = `This is a test message sent at {{.SentAt}}.
If you can read it, outbound mail is configured correctly.
`

var funcs = map[string]any{
	"year":  func() int { return time.Now().Year() },
	"brand": func() string { return Brand },
}

var (
	otpTpl          = mustHTML(otpHTML)
	resetTpl        = mustHTML(resetHTML)
	notificationTpl = mustHTML(notificationHTML)
	approvedTpl     = mustHTML(approvedHTML)
	rejectedTpl     = mustHTML(rejectedHTML)
	testTpl         = mustHTML(testHTML)

	otpTextTpl      = mustText(otpText)
	resetTextTpl    = mustText(resetText)
	approvedTextTpl = mustText(approvedText)
	rejectedTextTpl = mustText(rejectedText)
	testTextTpl     = mustText(testText)
)

func mustHTML(content string) *htmltemplate.Template {
	t := htmltemplate.Must(htmltemplate.New("layout").Funcs(htmltemplate.FuncMap(funcs)).Parse(layoutHTML))
	return htmltemplate.Must(t.Parse(content))
}

func mustText(content string) *texttemplate.Template {
	return texttemplate.Must(texttemplate.New("text").Funcs(texttemplate.FuncMap(funcs)).Parse(content))
}

func render(h *htmltemplate.Template, t *texttemplate.Template, data any) (string, string, error) {
	var hb bytes.Buffer
	if err := h.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if t == nil {
		return hb.String(), "", nil
	}
	var tb bytes.Buffer
	if err := t.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	case d >= time.Minute:
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	default:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
}

// OTPMessage renders a one-time code email.
func OTPMessage(to, code string, ttl time.Duration) (Message, error) {
	data := struct {
		Code      string
		ExpiresIn string
	}{code, humanDuration(ttl)}
	html, text, err := render(otpTpl, otpTextTpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: fmt.Sprintf("[%s] Your verification code", Brand), HTML: html, Text: text}, nil
}

// PasswordResetMessage renders the reset link email.
func PasswordResetMessage(to, name, role, link string, ttl time.Duration) (Message, error) {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	data := struct {
		Name      string
		Role      string
		Link      string
		ExpiresIn string
	}{name, strings.ToLower(role), link, humanDuration(ttl)}
	html, text, err := render(resetTpl, resetTextTpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: fmt.Sprintf("[%s] Reset your password", Brand), HTML: html, Text: text}, nil
}

// NotificationMessage renders a generic notification whose body is
// markdown. The plain-text part is the markdown source.
func NotificationMessage(to, title, markdown string) (Message, error) {
	var body bytes.Buffer
	if err := markdownEngine.Convert([]byte(markdown), &body); err != nil {
		return Message{}, err
	}
	data := struct {
		Title string
		Body  htmltemplate.HTML
	}{title, htmltemplate.HTML(body.String())}
	html, _, err := render(notificationTpl, nil, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] %s", Brand, title),
		HTML:    html,
		Text:    title + "\n\n" + markdown + "\n",
	}, nil
}

// AdminApprovedMessage carries the temporary password of a newly created
// admin account. It is the only place that plaintext ever leaves the process.
func AdminApprovedMessage(to, fullName, tempPassword, loginURL string) (Message, error) {
	data := struct {
		FullName          string
		Email             string
		TemporaryPassword string
		LoginURL          string
	}{fullName, to, tempPassword, loginURL}
	html, text, err := render(approvedTpl, approvedTextTpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: fmt.Sprintf("[%s] Your admin access was approved", Brand), HTML: html, Text: text}, nil
}

// AdminRejectedMessage renders the rejection notice; reason may be empty.
func AdminRejectedMessage(to, fullName, reason string) (Message, error) {
	data := struct {
		FullName string
		Reason   string
	}{fullName, strings.TrimSpace(reason)}
	html, text, err := render(rejectedTpl, rejectedTextTpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: fmt.Sprintf("[%s] Update on your admin access request", Brand), HTML: html, Text: text}, nil
}

// TestMessage renders the connectivity check email.
func TestMessage(to string, now time.Time) (Message, error) {
	data := struct{ SentAt string }{now.UTC().Format(time.RFC1123)}
	html, text, err := render(testTpl, testTextTpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: fmt.Sprintf("[%s] Test email", Brand), HTML: html, Text: text}, nil
}
