// Package config loads the service configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "VITALSCOPE_CONFIG"

// defaultConfigPath is used when neither flag nor environment names a file.
const defaultConfigPath = "config.yaml"

// errNoDSN indicates the config carries no database DSN.
var errNoDSN = errors.New("config: database dsn is required")

// Duration is a time.Duration that unmarshals from YAML strings like "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, errParse := time.ParseDuration(value.Value)
	if errParse != nil {
		return fmt.Errorf("config: parse duration %q: %w", value.Value, errParse)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address, host:port.
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // Postgres DSN or a sqlite file path.
}

// RedisConfig holds the optional Redis-backed ledger settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // Redis address; empty keeps the ledger in the database.
	Password string `yaml:"password"` // Redis password, if any.
	DB       int    `yaml:"db"`       // Redis logical database.
}

// BillingConfig holds webhook and provider reconciliation settings.
type BillingConfig struct {
	WebhookSecret  string  `yaml:"webhook-secret"`   // Shared HMAC secret for webhook signatures.
	ProviderURL    string  `yaml:"provider-url"`     // Base URL of the billing provider API; empty disables reconciliation.
	ProviderAPIKey string  `yaml:"provider-api-key"` // Bearer token for provider queries.
	ProviderQPS    float64 `yaml:"provider-qps"`     // Rate limit for provider queries.
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret       string   `yaml:"jwt-secret"`        // HS256 signing secret for user tokens.
	AdminSecret     string   `yaml:"admin-secret"`      // Plain admin secret; prefer the hash form.
	AdminSecretHash string   `yaml:"admin-secret-hash"` // bcrypt hash of the admin secret, wins over the plain form.
	TokenExpiry     Duration `yaml:"token-expiry"`      // Lifetime of issued tokens.
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	File  string `yaml:"file"`  // Log file path; empty logs to stderr only.
	Level string `yaml:"level"` // logrus level name.
	Debug bool   `yaml:"debug"` // Enables debug level regardless of Level.
}

// Config is the root configuration document.
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Database   DatabaseConfig `yaml:"database"`
	Redis      RedisConfig    `yaml:"redis"`
	Billing    BillingConfig  `yaml:"billing"`
	Auth       AuthConfig     `yaml:"auth"`
	Logging    LoggingConfig  `yaml:"logging"`
	Production bool           `yaml:"production"` // Drops sandbox webhook events when true.
}

// ResolvePath picks the config file location: explicit path, then the
// environment override, then the default.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := os.Getenv(EnvConfigPath); fromEnv != "" {
		return fromEnv
	}
	return defaultConfigPath
}

// Load reads and validates a Config from path.
func Load(path string) (*Config, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	cfg := Default()
	if errUnmarshal := yaml.Unmarshal(raw, cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	if cfg.Database.DSN == "" {
		return nil, errNoDSN
	}
	return cfg, nil
}

// Default returns a Config with usable defaults for everything a deployment
// may omit.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8318"},
		Billing: BillingConfig{
			ProviderQPS: 5,
		},
		Auth: AuthConfig{
			TokenExpiry: Duration(24 * time.Hour),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
