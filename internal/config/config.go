// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package config loads WordApp configuration from defaults, an optional YAML
// file, the DATABASE_URL environment variable and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/wordapp/wordapp/internal/auth"
	"github.com/wordapp/wordapp/internal/logging"
	"github.com/wordapp/wordapp/internal/mail"
	"github.com/wordapp/wordapp/internal/xdg"
)

// Mail drivers.
const (
	MailDriverLog  = "log"
	MailDriverSMTP = "smtp"
)

// MinCookieSecretLength is the shortest accepted cookies.secret.
const MinCookieSecretLength = 32

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server" yaml:"server"`
	Metrics    MetricsConfig    `koanf:"metrics" yaml:"metrics"`
	Database   DatabaseConfig   `koanf:"database" yaml:"database"`
	Log        LogConfig        `koanf:"log" yaml:"log"`
	Auth       AuthConfig       `koanf:"auth" yaml:"auth"`
	Cookies    CookieConfig     `koanf:"cookies" yaml:"cookies"`
	Forwarding ForwardingConfig `koanf:"forwarding" yaml:"forwarding"`
	Mail       MailConfig       `koanf:"mail" yaml:"mail"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	BaseURL         string        `koanf:"base_url" yaml:"base_url"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string        `koanf:"url" yaml:"url"`
	MaxConns        int32         `koanf:"max_conns" yaml:"max_conns"`
	ConnectAttempts uint64        `koanf:"connect_attempts" yaml:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff" yaml:"connect_backoff"`
}

// LogConfig configures slog.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// AuthConfig configures password hashing and token lifetimes.
type AuthConfig struct {
	Hasher      string        `koanf:"hasher" yaml:"hasher"`
	BcryptCost  int           `koanf:"bcrypt_cost" yaml:"bcrypt_cost"`
	ResetExpiry time.Duration `koanf:"reset_expiry" yaml:"reset_expiry"`
	// TestMode selects the cheapest hashing parameters.
	TestMode bool `koanf:"test_mode" yaml:"test_mode"`
}

// CookieConfig configures session and remember cookies.
type CookieConfig struct {
	Secret string `koanf:"secret" yaml:"secret"`
	Secure bool   `koanf:"secure" yaml:"secure"`
}

// ForwardingConfig lists the glob patterns a forwarding URL path must match.
type ForwardingConfig struct {
	Allow []string `koanf:"allow" yaml:"allow"`
}

// MailConfig selects and configures the mailer.
type MailConfig struct {
	Driver string     `koanf:"driver" yaml:"driver"`
	From   string     `koanf:"from" yaml:"from"`
	SMTP   SMTPConfig `koanf:"smtp" yaml:"smtp"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string        `koanf:"host" yaml:"host"`
	Port     int           `koanf:"port" yaml:"port"`
	Username string        `koanf:"username" yaml:"username"`
	Password string        `koanf:"password" yaml:"password"`
	TLS      string        `koanf:"tls" yaml:"tls"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:3000",
			BaseURL:         "http://localhost:3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			MaxConns:        10,
			ConnectAttempts: 5,
			ConnectBackoff:  200 * time.Millisecond,
		},
		Log: LogConfig{Format: "json", Level: "info"},
		Auth: AuthConfig{
			Hasher:      auth.AlgorithmBcrypt,
			ResetExpiry: auth.ResetTokenExpiry,
		},
		Forwarding: ForwardingConfig{Allow: []string{"/**"}},
		Mail: MailConfig{
			Driver: MailDriverLog,
			From:   "noreply@example.com",
			SMTP:   SMTPConfig{Port: 587, TLS: mail.TLSOpportunistic, Timeout: 15 * time.Second},
		},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"base-url":     "server.base_url",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// RegisterFlags adds the configuration flags with the defaults of Default.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("addr", d.Server.Addr, "HTTP listen address")
	flags.String("base-url", d.Server.BaseURL, "public base URL used in mailed links")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	flags.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Path is the YAML file. Empty means the XDG default, which may be absent.
	Path string
	// Flags registered with RegisterFlags. Only changed flags override.
	Flags *pflag.FlagSet
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load builds the effective configuration. It does not validate.
func Load(opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	k := koanf.New(".")

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		var err error
		if path, err = xdg.ConfigFile(); err != nil {
			path = ""
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
			}
		}
	}

	if dbURL := getenv("DATABASE_URL"); dbURL != "" {
		if err := k.Set("database.url", dbURL); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", "is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("server.base_url", "must be an absolute http(s) URL")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "must not be negative")
	}

	switch c.Auth.Hasher {
	case auth.AlgorithmBcrypt, auth.AlgorithmArgon2id:
	default:
		return invalid("auth.hasher", "must be 'bcrypt' or 'argon2id'")
	}
	if c.Auth.ResetExpiry <= 0 {
		return invalid("auth.reset_expiry", "must be positive")
	}
	if _, err := auth.NewPasswordHasher(c.HasherConfig()); err != nil {
		return invalid("auth.bcrypt_cost", err.Error())
	}

	if c.Cookies.Secret != "" && len(c.Cookies.Secret) < MinCookieSecretLength {
		return invalid("cookies.secret", "must be at least 32 bytes")
	}
	for _, pattern := range c.Forwarding.Allow {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return invalid("forwarding.allow", "bad pattern "+pattern)
		}
	}

	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverSMTP:
		if c.Mail.SMTP.Host == "" {
			return invalid("mail.smtp.host", "is required for the smtp driver")
		}
		if c.Mail.From == "" {
			return invalid("mail.from", "is required for the smtp driver")
		}
	default:
		return invalid("mail.driver", "must be 'log' or 'smtp'")
	}
	return nil
}

// HasherConfig returns the auth hasher settings.
func (c *Config) HasherConfig() auth.HasherConfig {
	return auth.HasherConfig{
		Algorithm:  c.Auth.Hasher,
		BcryptCost: c.Auth.BcryptCost,
		TestMode:   c.Auth.TestMode,
	}
}

// SMTP returns the mailer relay settings.
func (c *Config) SMTP() mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:     c.Mail.SMTP.Host,
		Port:     c.Mail.SMTP.Port,
		Username: c.Mail.SMTP.Username,
		Password: c.Mail.SMTP.Password,
		From:     c.Mail.From,
		TLS:      c.Mail.SMTP.TLS,
		Timeout:  c.Mail.SMTP.Timeout,
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	const mask = "********"
	if c.Cookies.Secret != "" {
		c.Cookies.Secret = mask
	}
	if c.Mail.SMTP.Password != "" {
		c.Mail.SMTP.Password = mask
	}
	if u, err := url.Parse(c.Database.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			c.Database.URL = u.String()
		}
	}
	c.Forwarding.Allow = append([]string(nil), c.Forwarding.Allow...)
	return c
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s %s", field, msg)
}
