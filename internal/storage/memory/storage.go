package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/ranking"
	"github.com/mcoot/rankdir/internal/storage"
)

// Storage is an in-memory implementation of the storage interfaces
type Storage struct {
	mu sync.RWMutex

	accounts      []model.Account
	accountIndex  map[model.AccountID]int
	identities    map[model.AccountID]*model.Identity
	usernameIndex map[string]model.AccountID
	sessions      map[string]*model.AuthSession
	nextID        model.AccountID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		accountIndex:  make(map[model.AccountID]int),
		identities:    make(map[model.AccountID]*model.Identity),
		usernameIndex: make(map[string]model.AccountID),
		sessions:      make(map[string]*model.AuthSession),
		nextID:        1,
	}
}

// Ensure Storage implements the interfaces
var (
	_ storage.Storage      = (*Storage)(nil)
	_ storage.SessionStore = (*Storage)(nil)
)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertAccountLocked(account)
	return nil
}

func (s *Storage) CreateAccountWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernameIndex[identity.Username]; ok {
		return model.ErrUsernameExists
	}

	s.insertAccountLocked(account)
	identity.AccountID = account.ID
	stored := *identity
	s.identities[account.ID] = &stored
	s.usernameIndex[identity.Username] = account.ID
	return nil
}

func (s *Storage) insertAccountLocked(account *model.Account) {
	account.ID = s.nextID
	s.nextID++

	s.accountIndex[account.ID] = len(s.accounts)
	s.accounts = append(s.accounts, *account)
	ranking.AssignRanks(s.accounts)
	account.Rank = s.accounts[s.accountIndex[account.ID]].Rank
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.accountIndex[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	account := s.accounts[idx]
	return &account, nil
}

func (s *Storage) QueryAccounts(ctx context.Context, q model.QueryRequest) ([]model.Account, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, total := ranking.Apply(s.accounts, q)
	return page, total, nil
}

func (s *Storage) CountAccounts(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

// Identity operations

func (s *Storage) SaveIdentity(ctx context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.AccountID]; !ok {
		return model.ErrIdentityNotFound
	}
	stored := *identity
	s.identities[identity.AccountID] = &stored
	return nil
}

func (s *Storage) GetIdentity(ctx context.Context, id model.AccountID) (*model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, model.ErrIdentityNotFound
	}
	out := *identity
	return &out, nil
}

func (s *Storage) GetIdentityByUsername(ctx context.Context, username string) (*model.Identity, error) {
	s.mu.RLock()
	id, ok := s.usernameIndex[username]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrIdentityNotFound
	}
	return s.GetIdentity(ctx, id)
}

// Session operations

func (s *Storage) SaveSession(ctx context.Context, session *model.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id string) (*model.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func copySession(session *model.AuthSession) *model.AuthSession {
	out := *session
	if session.Challenge != nil {
		c := *session.Challenge
		out.Challenge = &c
	}
	if session.Verification != nil {
		v := *session.Verification
		out.Verification = &v
	}
	return &out
}
