package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// applyEnv overrides file values with the process environment.
func applyEnv(c *AppConfig) error {
	setString(&c.Env, "APP_ENV")
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Redis.Host, "REDIS_HOST")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Mail.Provider, "MAIL_PROVIDER")
	setString(&c.Mail.Host, "MAIL_HOST")
	setString(&c.Mail.User, "MAIL_USER")
	setString(&c.Mail.Pass, "MAIL_PASS")
	setString(&c.Mail.From, "MAIL_FROM")
	setString(&c.Mail.SendGridAPIKey, "SENDGRID_API_KEY")
	setString(&c.Audit.File, "AUDIT_LOG_FILE")

	for name, dst := range map[string]*int{
		"PORT":       &c.Port,
		"REDIS_PORT": &c.Redis.Port,
		"REDIS_DB":   &c.Redis.DB,
		"MAIL_PORT":  &c.Mail.Port,
	} {
		if err := setInt(dst, name); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("ADMIN_NOTIFY_EMAILS"); ok {
		c.Admin.NotifyEmails = splitList(v)
	}
	return nil
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s must be an integer: %w", name, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
