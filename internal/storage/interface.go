package storage

import (
	"context"
	"time"

	"github.com/mcoot/rankdir/internal/model"
)

// Storage defines the interface for directory and identity persistence
type Storage interface {
	// Account operations

	// CreateAccount assigns the next account id and stores a directory entry
	CreateAccount(ctx context.Context, account *model.Account) error
	// CreateAccountWithIdentity stores a directory entry and its login identity
	// together. It fails with model.ErrUsernameExists if the username is taken.
	CreateAccountWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error
	GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error)
	// QueryAccounts returns one page of the filtered, sorted directory and the
	// size of the filtered set. The request must already be validated.
	QueryAccounts(ctx context.Context, q model.QueryRequest) ([]model.Account, int, error)
	CountAccounts(ctx context.Context) (int, error)

	// Identity operations
	SaveIdentity(ctx context.Context, identity *model.Identity) error
	GetIdentity(ctx context.Context, id model.AccountID) (*model.Identity, error)
	GetIdentityByUsername(ctx context.Context, username string) (*model.Identity, error)
}

// SessionStore owns authentication sessions. Expired sessions stay readable
// until DeleteExpiredSessions sweeps them.
type SessionStore interface {
	SaveSession(ctx context.Context, session *model.AuthSession) error
	GetSession(ctx context.Context, id string) (*model.AuthSession, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpiredSessions removes every session whose deadline is at or
	// before now and returns how many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// QueryCache stores directory query results keyed by the normalized request
type QueryCache interface {
	Get(ctx context.Context, key string) (*model.QueryResult, bool, error)
	Set(ctx context.Context, key string, result model.QueryResult, ttl time.Duration) error
}
