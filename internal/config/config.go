package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	// DefaultEnvFile is loaded when present. Variables already set in the
	// process environment win.
	DefaultEnvFile = ".env"

	defaultPort    = 8080
	defaultEnv     = "development"
	defaultBaseURL = "http://localhost:3000"
	defaultSQLite  = "gatekeeper.db"
	defaultFrom    = "no-reply@lernio.local"
)

// AppConfig holds runtime startup configuration.
type AppConfig struct {
	Env            string   `yaml:"env"` // "development" | "production" | "test"
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Mail      MailConfig      `yaml:"mail"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Admin     AdminConfig     `yaml:"admin"`
	Audit     AuditConfig     `yaml:"audit"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // mysql | postgres | sqlite
	URL         string `yaml:"url"`
	AutoMigrate *bool  `yaml:"auto_migrate"`
	Debug       bool   `yaml:"debug"`
}

type RedisConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	PoolSize        int           `yaml:"pool_size"`
	MinIdleConns    int           `yaml:"min_idle_conns"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

type MailConfig struct {
	Provider       string `yaml:"provider"` // smtp | sendgrid | log
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Pass           string `yaml:"pass"`
	From           string `yaml:"from"`
	FromName       string `yaml:"from_name"`
	ReplyTo        string `yaml:"reply_to"`
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	Attempts       int    `yaml:"attempts"`
}

type SessionConfig struct {
	TTL         time.Duration  `yaml:"ttl"`
	Limits      map[string]int `yaml:"limits"`
	AtomicLimit bool           `yaml:"atomic_limit"`
}

type RateLimitConfig struct {
	Disabled  bool                     `yaml:"disabled"`
	FailClose bool                     `yaml:"fail_close"`
	Rules     map[string]RateLimitRule `yaml:"rules"`
}

type RateLimitRule struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

type AdminConfig struct {
	NotifyEmails []string `yaml:"notify_emails"`
}

type AuditConfig struct {
	Disabled bool `yaml:"disabled"`
	// File, when set, also receives every event as one JSON line.
	File string `yaml:"file"`
}

// IsProduction reports whether Env is "production".
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// Addr returns the listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads envFiles (missing files are skipped), then the YAML file at
// configPath, then applies environment overrides and defaults.
//
// A missing file at DefaultConfigPath is not an error; a missing file at any
// other explicit path is.
func Load(configPath string, envFiles ...string) (*AppConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := &AppConfig{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(c *AppConfig) {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = defaultEnv
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = inferDriver(c.Database.URL)
	}
	if c.Database.Driver == "sqlite" && c.Database.URL == "" {
		c.Database.URL = defaultSQLite
	}

	c.Mail.Provider = strings.ToLower(strings.TrimSpace(c.Mail.Provider))
	if c.Mail.Provider == "" {
		switch {
		case c.Mail.SendGridAPIKey != "":
			c.Mail.Provider = "sendgrid"
		case c.Mail.Host != "":
			c.Mail.Provider = "smtp"
		default:
			c.Mail.Provider = "log"
		}
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.User
	}
	if c.Mail.From == "" {
		c.Mail.From = defaultFrom
	}
}

func inferDriver(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres"
	case url == "":
		return "sqlite"
	default:
		return "mysql"
	}
}

// Validate checks the values the process cannot start without.
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.IsProduction() {
		if c.Database.Driver == "sqlite" {
			return errors.New("config: DATABASE_URL is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return errors.New("config: JWT_SECRET must be at least 32 bytes in production")
		}
		if c.Mail.Provider == "log" {
			return errors.New("config: a mail provider is required in production")
		}
		if len(c.AllowedOrigins) == 0 {
			return errors.New("config: ALLOWED_ORIGINS is required in production")
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	return nil
}
