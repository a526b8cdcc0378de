// Package directory serves paginated, filtered and sorted views of the
// account directory.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/rankdir/internal/metrics"
	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/storage"
)

// Dependencies are the collaborators the directory service needs.
// Cache and Metrics are optional.
type Dependencies struct {
	Storage storage.Storage
	Cache   storage.QueryCache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Service answers directory queries
type Service struct {
	storage storage.Storage
	cache   storage.QueryCache
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

// New creates a new directory Service
func New(deps Dependencies, cfg Config) *Service {
	d := DefaultConfig()
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = d.MaxLimit
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = d.QueryTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		storage: deps.Storage,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		cfg:     cfg,
	}
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

type queryResponse struct {
	accounts []model.Account
	total    int
	err      error
}

// QueryAccounts validates the request and returns the requested page.
// Empty sort and order fall back to rank ascending. The call is read-only
// and never retried.
func (s *Service) QueryAccounts(ctx context.Context, q model.QueryRequest) (*model.QueryResult, error) {
	q = q.WithDefaults()
	if err := q.Validate(s.cfg.MaxLimit); err != nil {
		s.metrics.QueryOutcome("invalid")
		return nil, err
	}

	key := q.CacheKey()
	if cached, ok := s.lookup(ctx, key); ok {
		s.metrics.QueryOutcome("ok")
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	// storage may ignore ctx, so wait on both
	done := make(chan queryResponse, 1)
	go func() {
		accounts, total, err := s.storage.QueryAccounts(ctx, q)
		done <- queryResponse{accounts: accounts, total: total, err: err}
	}()

	var resp queryResponse
	select {
	case resp = <-done:
	case <-ctx.Done():
		resp.err = ctx.Err()
	}

	if resp.err != nil {
		if errors.Is(resp.err, context.Canceled) {
			s.metrics.QueryOutcome("cancelled")
			return nil, resp.err
		}
		s.metrics.QueryOutcome("unavailable")
		s.logger.WarnContext(ctx, "directory query failed", slog.String("error", resp.err.Error()))
		return nil, fmt.Errorf("%w: %v", model.ErrServiceUnavailable, resp.err)
	}

	result := model.NewQueryResult(resp.accounts, resp.total, q)
	s.store(ctx, key, result)
	s.metrics.QueryOutcome("ok")
	return &result, nil
}

// lookup consults the cache; failures are logged and treated as misses
func (s *Service) lookup(ctx context.Context, key string) (*model.QueryResult, bool) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return nil, false
	}
	result, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.CacheLookup("error")
		s.logger.WarnContext(ctx, "query cache read failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		s.metrics.CacheLookup("miss")
		return nil, false
	}
	s.metrics.CacheLookup("hit")
	return result, true
}

func (s *Service) store(ctx context.Context, key string, result model.QueryResult) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, result, s.cfg.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "query cache write failed", slog.String("error", err.Error()))
	}
}
