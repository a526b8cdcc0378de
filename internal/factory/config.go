package factory

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mcoot/rankdir/internal/config"
	"github.com/mcoot/rankdir/internal/mail"
	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/services/auth"
	"github.com/mcoot/rankdir/internal/services/directory"
	pgstorage "github.com/mcoot/rankdir/internal/storage/postgres"
	redisstorage "github.com/mcoot/rankdir/internal/storage/redis"
)

// FromConfig translates loaded server configuration into a factory Config
func FromConfig(c config.Config, logger *slog.Logger) Config {
	cfg := Config{
		StorageType:    c.Storage.Type,
		CacheType:      c.Cache.Type,
		CacheRedisURL:  c.Cache.RedisURL,
		DisableMetrics: !c.Server.Metrics,
		Logger:         logger,
	}

	switch c.Storage.Type {
	case config.BackendRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.Storage.RedisURL
		cfg.RedisConfig = &redisCfg
	case config.BackendPostgres:
		pgCfg := pgstorage.DefaultConfig()
		pgCfg.DSN = c.Storage.PostgresDSN
		pgCfg.AutoMigrate = c.Storage.AutoMigrate
		cfg.PostgresConfig = &pgCfg
	}

	gates := make([]model.Gate, len(c.Auth.GateOrder))
	for i, g := range c.Auth.GateOrder {
		gates[i] = model.Gate(g)
	}
	cfg.AuthConfig = auth.Config{
		SessionDuration:   c.Auth.SessionDuration,
		FlowTimeout:       c.Auth.FlowTimeout,
		ChallengeTTL:      c.Auth.ChallengeTTL,
		MaxCodeAttempts:   c.Auth.MaxCodeAttempts,
		VerificationTTL:   c.Auth.VerificationTTL,
		ResendInterval:    c.Auth.ResendInterval,
		SecondFactor:      auth.GatePolicy(c.Auth.SecondFactor),
		EmailVerification: auth.GatePolicy(c.Auth.EmailVerification),
		GateOrder:         gates,
		JWTSecret:         c.Auth.JWTSecret,
	}

	cacheTTL := c.Cache.TTL
	if c.Cache.Type == config.BackendNone {
		cacheTTL = 0
	}
	cfg.DirectoryConfig = directory.Config{
		MaxLimit:     c.Directory.MaxLimit,
		QueryTimeout: c.Directory.QueryTimeout,
		CacheTTL:     cacheTTL,
	}

	if c.Mail.Type == config.MailerSMTP {
		cfg.Mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     c.Mail.Host,
			Port:     strconv.Itoa(c.Mail.Port),
			From:     c.Mail.From,
			Password: c.Mail.Password,
		})
	}
	return cfg
}

// RouterOptionsFromConfig extracts the HTTP settings
func RouterOptionsFromConfig(c config.Config) RouterOptions {
	return RouterOptions{
		BasePath:       c.Server.BasePath,
		LoginPerMinute: c.Server.LoginPerMinute,
		LoginBurst:     c.Server.LoginBurst,
	}
}

// Describe summarizes the chosen backends for the startup log
func (c Config) Describe() string {
	cache := c.CacheType
	if cache == "" {
		cache = StorageTypeMemory
	}
	storage := c.StorageType
	if storage == "" {
		storage = StorageTypeMemory
	}
	return fmt.Sprintf("storage=%s cache=%s", storage, cache)
}
