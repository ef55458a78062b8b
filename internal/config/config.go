// ABOUTME: Configuration loading and parsing for coven-identity
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minSecretLength matches the token package's HS256 key floor
const minSecretLength = 32

// OTP storage backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Delivery modes
const (
	DeliveryLog  = "log"
	DeliverySMTP = "smtp"
)

// Config represents the complete coven-identity configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	OTP      OTPConfig      `yaml:"otp"`
	Redis    RedisConfig    `yaml:"redis"`
	Google   GoogleConfig   `yaml:"google"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds token signing and password hashing configuration.
// Each token kind has its own secret.
type AuthConfig struct {
	Issuer        string `yaml:"issuer"`
	AccessSecret  string `yaml:"access_secret"`
	RefreshSecret string `yaml:"refresh_secret"`
	ResetSecret   string `yaml:"reset_secret"`
	BcryptCost    int    `yaml:"bcrypt_cost"`

	AccessTTL          time.Duration `yaml:"-"`
	RefreshTTL         time.Duration `yaml:"-"`
	RefreshExtendedTTL time.Duration `yaml:"-"`
	ResetTTL           time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	AccessTTLRaw          string `yaml:"access_ttl"`
	RefreshTTLRaw         string `yaml:"refresh_ttl"`
	RefreshExtendedTTLRaw string `yaml:"refresh_extended_ttl"`
	ResetTTLRaw           string `yaml:"reset_ttl"`
}

// OTPConfig holds one-time code configuration
type OTPConfig struct {
	Backend      string `yaml:"backend"`
	Digits       int    `yaml:"digits"`
	MaxPerWindow int    `yaml:"max_per_window"`

	TTL      time.Duration `yaml:"-"`
	Cooldown time.Duration `yaml:"-"`
	Window   time.Duration `yaml:"-"`

	TTLRaw      string `yaml:"ttl"`
	CooldownRaw string `yaml:"cooldown"`
	WindowRaw   string `yaml:"window"`
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GoogleConfig holds Google sign-in settings. An empty ClientID disables social login.
type GoogleConfig struct {
	ClientID string `yaml:"client_id"`
}

// DeliveryConfig selects how codes reach users
type DeliveryConfig struct {
	Mode string     `yaml:"mode"`
	SMTP SMTPConfig `yaml:"smtp"`
}

// SMTPConfig holds mail relay settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills values left empty. Token and OTP lifetimes left at
// zero are defaulted by their own packages.
func (c *Config) applyDefaults() {
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "coven-identity"
	}
	if c.OTP.Backend == "" {
		c.OTP.Backend = BackendSQLite
	}
	if c.Delivery.Mode == "" {
		c.Delivery.Mode = DeliveryLog
	}
	if c.Delivery.SMTP.Port == "" {
		c.Delivery.SMTP.Port = "587"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	secrets := map[string]string{
		"auth.access_secret":  c.Auth.AccessSecret,
		"auth.refresh_secret": c.Auth.RefreshSecret,
		"auth.reset_secret":   c.Auth.ResetSecret,
	}
	for _, name := range []string{"auth.access_secret", "auth.refresh_secret", "auth.reset_secret"} {
		if len(secrets[name]) < minSecretLength {
			return fmt.Errorf("%s must be at least %d bytes", name, minSecretLength)
		}
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret ||
		c.Auth.AccessSecret == c.Auth.ResetSecret ||
		c.Auth.RefreshSecret == c.Auth.ResetSecret {
		return fmt.Errorf("auth secrets must all differ")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}

	switch c.OTP.Backend {
	case BackendSQLite:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when otp.backend is redis")
		}
	default:
		return fmt.Errorf("otp.backend must be %q or %q, got %q", BackendSQLite, BackendRedis, c.OTP.Backend)
	}
	if c.OTP.Digits != 0 && (c.OTP.Digits < 4 || c.OTP.Digits > 10) {
		return fmt.Errorf("otp.digits must be between 4 and 10")
	}
	if c.OTP.MaxPerWindow > 0 && c.OTP.Window <= 0 {
		return fmt.Errorf("otp.window is required when otp.max_per_window is set")
	}

	switch c.Delivery.Mode {
	case DeliveryLog:
	case DeliverySMTP:
		if c.Delivery.SMTP.Host == "" {
			return fmt.Errorf("delivery.smtp.host is required when delivery.mode is smtp")
		}
		if c.Delivery.SMTP.From == "" && c.Delivery.SMTP.Username == "" {
			return fmt.Errorf("delivery.smtp.from or delivery.smtp.username is required")
		}
	default:
		return fmt.Errorf("delivery.mode must be %q or %q, got %q", DeliveryLog, DeliverySMTP, c.Delivery.Mode)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.access_ttl", cfg.Auth.AccessTTLRaw, &cfg.Auth.AccessTTL},
		{"auth.refresh_ttl", cfg.Auth.RefreshTTLRaw, &cfg.Auth.RefreshTTL},
		{"auth.refresh_extended_ttl", cfg.Auth.RefreshExtendedTTLRaw, &cfg.Auth.RefreshExtendedTTL},
		{"auth.reset_ttl", cfg.Auth.ResetTTLRaw, &cfg.Auth.ResetTTL},
		{"otp.ttl", cfg.OTP.TTLRaw, &cfg.OTP.TTL},
		{"otp.cooldown", cfg.OTP.CooldownRaw, &cfg.OTP.Cooldown},
		{"otp.window", cfg.OTP.WindowRaw, &cfg.OTP.Window},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}
