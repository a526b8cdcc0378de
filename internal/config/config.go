// Package config loads server configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage and cache backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// Mailer kinds
const (
	MailerLog  = "log"
	MailerSMTP = "smtp"
)

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Directory DirectoryConfig `yaml:"directory"`
	Mail      MailConfig      `yaml:"mail"`
	Seed      SeedConfig      `yaml:"seed"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// LoginPerMinute limits login and register per client address; 0 disables
	LoginPerMinute int  `yaml:"login_per_minute"`
	LoginBurst     int  `yaml:"login_burst"`
	Metrics        bool `yaml:"metrics"`
}

// StorageConfig selects the directory, identity and session backend
type StorageConfig struct {
	Type        string `yaml:"type"`
	RedisURL    string `yaml:"redis_url"`
	PostgresDSN string `yaml:"postgres_dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// CacheConfig selects the query result cache
type CacheConfig struct {
	Type     string        `yaml:"type"`
	TTL      time.Duration `yaml:"ttl"`
	RedisURL string        `yaml:"redis_url"`
}

// AuthConfig holds authentication flow settings
type AuthConfig struct {
	SessionDuration   time.Duration `yaml:"session_duration"`
	FlowTimeout       time.Duration `yaml:"flow_timeout"`
	ChallengeTTL      time.Duration `yaml:"challenge_ttl"`
	MaxCodeAttempts   int           `yaml:"max_code_attempts"`
	VerificationTTL   time.Duration `yaml:"verification_ttl"`
	ResendInterval    time.Duration `yaml:"resend_interval"`
	SecondFactor      string        `yaml:"second_factor"`
	EmailVerification string        `yaml:"email_verification"`
	GateOrder         []string      `yaml:"gate_order"`
	JWTSecret         string        `yaml:"jwt_secret"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// DirectoryConfig holds query service settings
type DirectoryConfig struct {
	MaxLimit     int           `yaml:"max_limit"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// MailConfig selects how verification tokens are delivered
type MailConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"smtp_host"`
	Port     int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	Password string `yaml:"smtp_password"`
}

// SeedConfig controls fake data on an empty directory
type SeedConfig struct {
	Accounts int   `yaml:"accounts"`
	Seed     int64 `yaml:"seed"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			BasePath:        "/api/v1",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			LoginPerMinute:  30,
			LoginBurst:      10,
			Metrics:         true,
		},
		Storage: StorageConfig{
			Type:        BackendMemory,
			AutoMigrate: true,
		},
		Cache: CacheConfig{
			Type: BackendMemory,
			TTL:  5 * time.Minute,
		},
		Auth: AuthConfig{
			SessionDuration:   24 * time.Hour,
			FlowTimeout:       15 * time.Minute,
			ChallengeTTL:      5 * time.Minute,
			MaxCodeAttempts:   3,
			VerificationTTL:   15 * time.Minute,
			ResendInterval:    time.Minute,
			SecondFactor:      "account",
			EmailVerification: "account",
			GateOrder:         []string{"second_factor", "email"},
			SweepInterval:     time.Minute,
		},
		Directory: DirectoryConfig{
			MaxLimit:     100,
			QueryTimeout: 5 * time.Second,
		},
		Mail: MailConfig{
			Type: MailerLog,
			Port: 587,
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides fields from environment variables
func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"HOST":               &c.Server.Host,
		"BASE_PATH":          &c.Server.BasePath,
		"STORAGE_TYPE":       &c.Storage.Type,
		"REDIS_URL":          &c.Storage.RedisURL,
		"DATABASE_URL":       &c.Storage.PostgresDSN,
		"CACHE_TYPE":         &c.Cache.Type,
		"JWT_SECRET":         &c.Auth.JWTSecret,
		"SECOND_FACTOR":      &c.Auth.SecondFactor,
		"EMAIL_VERIFICATION": &c.Auth.EmailVerification,
		"MAIL_TYPE":          &c.Mail.Type,
		"SMTP_HOST":          &c.Mail.Host,
		"SMTP_FROM":          &c.Mail.From,
		"SMTP_PASSWORD":      &c.Mail.Password,
		"LOG_LEVEL":          &c.LogLevel,
	}
	for name, field := range strs {
		if v := getenv(name); v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"PORT":          &c.Server.Port,
		"SMTP_PORT":     &c.Mail.Port,
		"SEED_ACCOUNTS": &c.Seed.Accounts,
	}
	for name, field := range ints {
		if v := getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", name, err)
			}
			*field = n
		}
	}

	if v := getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL value: %w", err)
		}
		c.Cache.TTL = d
	}
	if v := getenv("SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SEED value: %w", err)
		}
		c.Seed.Seed = n
	}
	return nil
}

// Validate checks backend names and that each backend has its connection settings
func (c Config) Validate() error {
	switch c.Storage.Type {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("REDIS_URL required when storage type is redis")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("DATABASE_URL required when storage type is postgres")
		}
	default:
		return fmt.Errorf("invalid storage type %q: must be memory, redis or postgres", c.Storage.Type)
	}

	switch c.Cache.Type {
	case BackendMemory, BackendNone:
	case BackendRedis:
		if c.Cache.RedisURL == "" && c.Storage.Type != BackendRedis {
			return errors.New("cache.redis_url required for a redis cache without redis storage")
		}
	default:
		return fmt.Errorf("invalid cache type %q: must be memory, redis or none", c.Cache.Type)
	}

	switch c.Mail.Type {
	case MailerLog:
	case MailerSMTP:
		if c.Mail.Host == "" || c.Mail.From == "" {
			return errors.New("SMTP_HOST and SMTP_FROM required for the smtp mailer")
		}
	default:
		return fmt.Errorf("invalid mail type %q: must be log or smtp", c.Mail.Type)
	}

	for _, g := range c.Auth.GateOrder {
		if g != "second_factor" && g != "email" {
			return fmt.Errorf("invalid gate %q in gate_order", g)
		}
	}
	for _, p := range []string{c.Auth.SecondFactor, c.Auth.EmailVerification} {
		if p != "account" && p != "off" {
			return fmt.Errorf("invalid gate policy %q: must be account or off", p)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}
