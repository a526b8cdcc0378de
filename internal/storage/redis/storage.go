package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/ranking"
	"github.com/mcoot/rankdir/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interfaces
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultConfig().SessionTTL
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Client exposes the underlying client so the query cache can share it
func (s *Storage) Client() *redis.Client {
	return s.client
}

// Ping checks the connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interfaces
var (
	_ storage.Storage      = (*Storage)(nil)
	_ storage.SessionStore = (*Storage)(nil)
)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, account *model.Account) error {
	id, err := s.client.Incr(ctx, accountSeqKey()).Result()
	if err != nil {
		return err
	}
	account.ID = model.AccountID(id)
	return s.writeAccount(ctx, s.client, account)
}

func (s *Storage) CreateAccountWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error {
	id, err := s.client.Incr(ctx, accountSeqKey()).Result()
	if err != nil {
		return err
	}

	// Claim the username before writing anything else
	claimed, err := s.client.SetNX(ctx, usernameIndexKey(identity.Username), id, 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return model.ErrUsernameExists
	}

	account.ID = model.AccountID(id)
	identity.AccountID = account.ID

	identityData, err := json.Marshal(identity)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := s.writeAccount(ctx, pipe, account); err != nil {
			return err
		}
		pipe.Set(ctx, identityKey(account.ID), identityData, 0)
		return nil
	})
	return err
}

func (s *Storage) writeAccount(ctx context.Context, c redis.Cmdable, account *model.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, accountKey(account.ID), data, 0).Err(); err != nil {
		return err
	}
	return c.ZAdd(ctx, scoreIndexKey(), redis.Z{
		Score:  float64(account.Score),
		Member: strconv.FormatInt(int64(account.ID), 10),
	}).Err()
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	data, err := s.client.Get(ctx, accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}

	var account model.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}

	// Competition rank: one more than the number of strictly higher scores
	higher, err := s.client.ZCount(ctx, scoreIndexKey(), "("+strconv.FormatInt(account.Score, 10), "+inf").Result()
	if err != nil {
		return nil, err
	}
	account.Rank = int(higher) + 1
	return &account, nil
}

func (s *Storage) QueryAccounts(ctx context.Context, q model.QueryRequest) ([]model.Account, int, error) {
	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return nil, 0, err
	}
	ranking.AssignRanks(accounts)
	page, total := ranking.Apply(accounts, q)
	return page, total, nil
}

// loadAccounts fetches every account listed in the score index
func (s *Storage) loadAccounts(ctx context.Context) ([]model.Account, error) {
	ids, err := s.client.ZRange(ctx, scoreIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Account{}, nil
	}

	keys := make([]string, len(ids))
	for i, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		keys[i] = accountKey(model.AccountID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	accounts := make([]model.Account, 0, len(values))
	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}
		var account model.Account
		if err := json.Unmarshal([]byte(str), &account); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (s *Storage) CountAccounts(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, scoreIndexKey()).Result()
	return int(n), err
}

// Identity operations

func (s *Storage) SaveIdentity(ctx context.Context, identity *model.Identity) error {
	exists, err := s.client.Exists(ctx, identityKey(identity.AccountID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return model.ErrIdentityNotFound
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, identityKey(identity.AccountID), data, 0).Err()
}

func (s *Storage) GetIdentity(ctx context.Context, id model.AccountID) (*model.Identity, error) {
	data, err := s.client.Get(ctx, identityKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, err
	}

	var identity model.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *Storage) GetIdentityByUsername(ctx context.Context, username string) (*model.Identity, error) {
	// Look up account ID from username index
	id, err := s.client.Get(ctx, usernameIndexKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, err
	}

	return s.GetIdentity(ctx, model.AccountID(id))
}

// Session operations

func (s *Storage) SaveSession(ctx context.Context, session *model.AuthSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	// Use pipeline for atomic save + expiry index update
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, s.cfg.SessionTTL)
	pipe.ZAdd(ctx, sessionExpiryIndexKey(), redis.Z{
		Score:  float64(session.ExpiresAt.UnixMilli()),
		Member: session.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetSession(ctx context.Context, id string) (*model.AuthSession, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}

	var session model.AuthSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.ZRem(ctx, sessionExpiryIndexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, sessionExpiryIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
		members[i] = id
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, sessionExpiryIndexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}
