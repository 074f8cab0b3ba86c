package config

import (
	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/internal/database"
	"github.com/lernio/gatekeeper/internal/kvstore"
	"github.com/lernio/gatekeeper/mail"
)

// Engine derives the engine configuration. Values the file leaves unset keep
// gatekeeper.DefaultConfig.
func (c *AppConfig) Engine() gatekeeper.Config {
	cfg := gatekeeper.DefaultConfig()
	cfg.App.BaseURL = c.BaseURL
	cfg.App.Production = c.IsProduction()

	cfg.Token.PrivateKey = []byte(c.JWT.Secret)
	if c.JWT.TTL > 0 {
		cfg.Token.TTL = c.JWT.TTL
	}
	if c.JWT.Issuer != "" {
		cfg.Token.Issuer = c.JWT.Issuer
	}

	if c.Session.TTL > 0 {
		cfg.Session.TTL = c.Session.TTL
	}
	for role, limit := range c.Session.Limits {
		if r, err := gatekeeper.ParseRole(role); err == nil && limit > 0 {
			cfg.Session.Limits[r] = limit
		}
	}
	cfg.Session.AtomicLimit = c.Session.AtomicLimit

	cfg.RateLimit.Enabled = !c.RateLimit.Disabled
	cfg.RateLimit.FailOpen = !c.RateLimit.FailClose
	for policy, rule := range c.RateLimit.Rules {
		cfg.RateLimit.Rules[gatekeeper.RateLimitPolicy(policy)] = gatekeeper.RateLimitRule{Max: rule.Max, Window: rule.Window}
	}

	cfg.AdminRequest.NotifyEmails = append([]string(nil), c.Admin.NotifyEmails...)
	cfg.Audit.Enabled = !c.Audit.Disabled
	return cfg
}

// KVStore returns the Redis connection options.
func (c *AppConfig) KVStore() kvstore.Options {
	return kvstore.Options{
		URL:             c.Redis.URL,
		Host:            c.Redis.Host,
		Port:            c.Redis.Port,
		Password:        c.Redis.Password,
		DB:              c.Redis.DB,
		PoolSize:        c.Redis.PoolSize,
		MinIdleConns:    c.Redis.MinIdleConns,
		DialTimeout:     c.Redis.DialTimeout,
		ConnMaxIdleTime: c.Redis.ConnMaxIdleTime,
	}
}

// DatabaseOptions returns the relational store options. Auto-migration is on
// unless the file turns it off.
func (c *AppConfig) DatabaseOptions() database.Options {
	migrate := true
	if c.Database.AutoMigrate != nil {
		migrate = *c.Database.AutoMigrate
	}
	return database.Options{
		Driver:      c.Database.Driver,
		DSN:         c.Database.URL,
		Production:  c.IsProduction(),
		Debug:       c.Database.Debug,
		AutoMigrate: migrate,
	}
}

// MailSender returns the mail transport configuration.
func (c *AppConfig) MailSender() mail.Config {
	return mail.Config{
		Provider: mail.Provider(c.Mail.Provider),
		From:     mail.Address{Name: c.Mail.FromName, Email: c.Mail.From},
		SMTP: mail.SMTPConfig{
			Host:    c.Mail.Host,
			Port:    c.Mail.Port,
			User:    c.Mail.User,
			Pass:    c.Mail.Pass,
			ReplyTo: c.Mail.ReplyTo,
		},
		SendGridAPIKey: c.Mail.SendGridAPIKey,
		Attempts:       c.Mail.Attempts,
	}
}
