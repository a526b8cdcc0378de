package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/mcoot/rankdir/internal/api"
	"github.com/mcoot/rankdir/internal/api/handler"
	"github.com/mcoot/rankdir/internal/dependencies/clock"
	"github.com/mcoot/rankdir/internal/dependencies/random"
	"github.com/mcoot/rankdir/internal/mail"
	"github.com/mcoot/rankdir/internal/metrics"
	"github.com/mcoot/rankdir/internal/services/auth"
	"github.com/mcoot/rankdir/internal/services/directory"
	"github.com/mcoot/rankdir/internal/storage"
	"github.com/mcoot/rankdir/internal/storage/memory"
	pgstorage "github.com/mcoot/rankdir/internal/storage/postgres"
	redisstorage "github.com/mcoot/rankdir/internal/storage/redis"
)

// Storage and cache type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
	CacheTypeNone       = "none"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage  storage.Storage
	Sessions storage.SessionStore
	Cache    storage.QueryCache

	// External dependencies
	Clock   clock.Clock
	Random  random.Random
	Mailer  mail.Mailer
	Metrics *metrics.Metrics

	// Services
	AuthService      *auth.Service
	DirectoryService *directory.Service

	logger  *slog.Logger
	pingers []handler.Pinger
	closers []io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// StorageType is "memory", "redis" or "postgres" (defaults to memory)
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// PostgresConfig holds Postgres settings (required if StorageType is "postgres")
	PostgresConfig *pgstorage.Config

	// CacheType is "memory", "redis" or "none" (defaults to memory)
	CacheType string
	// CacheRedisURL is used for a redis cache when storage is not redis
	CacheRedisURL string

	// AuthConfig holds configuration for the auth service (optional)
	AuthConfig auth.Config
	// DirectoryConfig holds configuration for the directory service (optional)
	DirectoryConfig directory.Config

	// Mailer delivers verification tokens. Defaults to logging them.
	Mailer mail.Mailer
	// DisableMetrics skips creating the Prometheus registry
	DisableMetrics bool

	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	app := &App{logger: logger}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	var redisClient *goredis.Client
	switch storageType {
	case StorageTypeMemory:
		store := memory.New()
		app.Storage, app.Sessions = store, store
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		store, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		app.Storage, app.Sessions = store, store
		app.pingers = append(app.pingers, store)
		app.closers = append(app.closers, store)
		redisClient = store.Client()
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		store, err := pgstorage.New(ctx, *cfg.PostgresConfig)
		if err != nil {
			return nil, err
		}
		app.Storage, app.Sessions = store, store
		app.pingers = append(app.pingers, store)
		app.closers = append(app.closers, store)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be memory, redis or postgres", storageType)
	}

	cache, err := app.newCache(cfg, redisClient)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Cache = cache

	if !cfg.DisableMetrics {
		app.Metrics = metrics.New()
	}

	mailer := cfg.Mailer
	if mailer == nil {
		mailer = mail.NewLogMailer(logger)
	}

	if err := app.wire(clock.New(), random.New(), mailer, cfg.AuthConfig, cfg.DirectoryConfig); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) newCache(cfg Config, storageClient *goredis.Client) (storage.QueryCache, error) {
	switch cfg.CacheType {
	case "", StorageTypeMemory:
		return memory.NewQueryCache(time.Minute), nil
	case CacheTypeNone:
		return nil, nil
	case StorageTypeRedis:
		if storageClient != nil {
			return redisstorage.NewQueryCache(storageClient), nil
		}
		if cfg.CacheRedisURL == "" {
			return nil, errors.New("CacheRedisURL required for a redis cache without redis storage")
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.CacheRedisURL
		store, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, err
		}
		a.pingers = append(a.pingers, store)
		a.closers = append(a.closers, store)
		return redisstorage.NewQueryCache(store.Client()), nil
	default:
		return nil, fmt.Errorf("invalid CacheType %q: must be memory, redis or none", cfg.CacheType)
	}
}

// wire creates the services over the already chosen storage
func (a *App) wire(clk clock.Clock, rnd random.Random, mailer mail.Mailer, authCfg auth.Config, dirCfg directory.Config) error {
	a.Clock = clk
	a.Random = rnd
	a.Mailer = mailer

	authService, err := auth.New(auth.Dependencies{
		Storage:  a.Storage,
		Sessions: a.Sessions,
		Clock:    clk,
		Random:   rnd,
		Mailer:   mailer,
		Metrics:  a.Metrics,
		Logger:   a.logger,
	}, authCfg)
	if err != nil {
		return err
	}
	a.AuthService = authService

	if dirCfg == (directory.Config{}) {
		dirCfg = directory.DefaultConfig()
	}
	a.DirectoryService = directory.New(directory.Dependencies{
		Storage: a.Storage,
		Cache:   a.Cache,
		Metrics: a.Metrics,
		Logger:  a.logger,
	}, dirCfg)
	return nil
}

// RouterOptions are the HTTP settings not owned by the services
type RouterOptions struct {
	BasePath       string
	LoginPerMinute int
	LoginBurst     int
}

// Router builds the API handler over the app's services
func (a *App) Router(opts RouterOptions) http.Handler {
	var loginRate rate.Limit
	if opts.LoginPerMinute > 0 {
		loginRate = rate.Every(time.Minute / time.Duration(opts.LoginPerMinute))
	}
	return api.NewRouter(api.RouterConfig{
		Logger:           a.logger,
		AuthService:      a.AuthService,
		DirectoryService: a.DirectoryService,
		Metrics:          a.Metrics,
		BasePath:         opts.BasePath,
		LoginRate:        loginRate,
		LoginBurst:       opts.LoginBurst,
		HealthChecks:     a.pingers,
	})
}

// Close releases backend connections
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
