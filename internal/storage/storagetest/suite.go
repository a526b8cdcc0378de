// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/storage"
)

// Factory builds a fresh, empty backend for one test
type Factory func(t *testing.T) (storage.Storage, storage.SessionStore)

// Suite runs the shared storage contract against a backend
type Suite struct {
	suite.Suite
	Factory Factory

	storage  storage.Storage
	sessions storage.SessionStore
	ctx      context.Context
	now      time.Time
}

func (s *Suite) SetupTest() {
	s.storage, s.sessions = s.Factory(s.T())
	s.ctx = context.Background()
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) createAccounts(n int) []model.Account {
	out := make([]model.Account, 0, n)
	for i := 1; i <= n; i++ {
		a := &model.Account{
			Username: fmt.Sprintf("player%02d", i),
			Class:    model.Classes[i%len(model.Classes)],
			Score:    int64(i * 10),
		}
		s.Require().NoError(s.storage.CreateAccount(s.ctx, a))
		out = append(out, *a)
	}
	return out
}

func ptr(v int64) *int64 { return &v }

// Account tests

func (s *Suite) TestCreateAccountAssignsSequentialIDs() {
	accounts := s.createAccounts(3)

	s.NotZero(accounts[0].ID)
	s.Less(accounts[0].ID, accounts[1].ID)
	s.Less(accounts[1].ID, accounts[2].ID)
}

func (s *Suite) TestGetAccountIncludesRank() {
	accounts := s.createAccounts(3)

	top, err := s.storage.GetAccount(s.ctx, accounts[2].ID)
	s.Require().NoError(err)
	s.Equal("player03", top.Username)
	s.Equal(1, top.Rank)

	bottom, err := s.storage.GetAccount(s.ctx, accounts[0].ID)
	s.Require().NoError(err)
	s.Equal(3, bottom.Rank)
}

func (s *Suite) TestGetAccountNotFound() {
	_, err := s.storage.GetAccount(s.ctx, 9999)
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *Suite) TestCountAccounts() {
	s.createAccounts(4)

	n, err := s.storage.CountAccounts(s.ctx)
	s.Require().NoError(err)
	s.Equal(4, n)
}

func (s *Suite) TestQueryAccountsPaginatesByRank() {
	s.createAccounts(25)

	q := model.QueryRequest{Page: 1, Limit: 10, Sort: model.SortRank, Order: model.OrderAsc}
	page, total, err := s.storage.QueryAccounts(s.ctx, q)
	s.Require().NoError(err)

	s.Equal(25, total)
	s.Require().Len(page, 10)
	for i, a := range page {
		s.Equal(i+1, a.Rank)
	}
	s.Equal("player25", page[0].Username)
}

func (s *Suite) TestQueryAccountsBeyondLastPage() {
	s.createAccounts(5)

	q := model.QueryRequest{Page: 3, Limit: 10, Sort: model.SortRank, Order: model.OrderAsc}
	page, total, err := s.storage.QueryAccounts(s.ctx, q)
	s.Require().NoError(err)
	s.Empty(page)
	s.Equal(5, total)
}

func (s *Suite) TestQueryAccountsHugePageIsEmpty() {
	s.createAccounts(5)

	q := model.QueryRequest{Page: 1<<62 + 1, Limit: 4, Sort: model.SortRank, Order: model.OrderAsc}
	page, total, err := s.storage.QueryAccounts(s.ctx, q)
	s.Require().NoError(err)
	s.Empty(page)
	s.Equal(5, total)
}

func (s *Suite) TestQueryAccountsUsernameSortIsByteOrder() {
	for _, name := range []string{"ab", "a_b", "a-c", "AA"} {
		s.Require().NoError(s.storage.CreateAccount(s.ctx, &model.Account{Username: name, Class: model.ClassWarrior}))
	}

	q := model.QueryRequest{Page: 1, Limit: 10, Sort: model.SortUsername, Order: model.OrderAsc}
	page, _, err := s.storage.QueryAccounts(s.ctx, q)
	s.Require().NoError(err)

	names := make([]string, len(page))
	for i, a := range page {
		names[i] = a.Username
	}
	s.Equal([]string{"a-c", "a_b", "AA", "ab"}, names)
}

func (s *Suite) TestQueryAccountsFilters() {
	s.createAccounts(25)

	q := model.QueryRequest{
		Page: 1, Limit: 100, Sort: model.SortScore, Order: model.OrderDesc,
		Search: "PLAYER1", Class: model.Classes[1], MinScore: ptr(100), MaxScore: ptr(200),
	}
	page, total, err := s.storage.QueryAccounts(s.ctx, q)
	s.Require().NoError(err)

	// player10..player19 whose class index is 1 (i%8 == 1): player17
	s.Equal(1, total)
	s.Require().Len(page, 1)
	s.Equal("player17", page[0].Username)
	s.Equal(9, page[0].Rank)
}

func (s *Suite) TestQueryAccountsRankIgnoresFilters() {
	s.createAccounts(10)

	q := model.QueryRequest{Page: 1, Limit: 10, Sort: model.SortRank, Order: model.OrderAsc, MaxScore: ptr(20)}
	page, total, err := s.storage.QueryAccounts(s.ctx, q)
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Equal(9, page[0].Rank)
	s.Equal(10, page[1].Rank)
}

func (s *Suite) TestQueryAccountsTiesShareRankAndBreakByID() {
	for _, name := range []string{"c", "a", "b"} {
		s.Require().NoError(s.storage.CreateAccount(s.ctx, &model.Account{Username: name, Class: model.ClassBard, Score: 50}))
	}

	q := model.QueryRequest{Page: 1, Limit: 10, Sort: model.SortRank, Order: model.OrderDesc}
	page, _, err := s.storage.QueryAccounts(s.ctx, q)
	s.Require().NoError(err)
	s.Require().Len(page, 3)
	s.Equal([]string{"c", "a", "b"}, []string{page[0].Username, page[1].Username, page[2].Username})
	for _, a := range page {
		s.Equal(1, a.Rank)
	}
}

// Identity tests

func (s *Suite) TestCreateAccountWithIdentity() {
	account := &model.Account{Username: "alice", Class: model.ClassMage}
	identity := &model.Identity{Username: "alice", Email: "alice@example.com", PasswordHash: "hash", CreatedAt: s.now}

	s.Require().NoError(s.storage.CreateAccountWithIdentity(s.ctx, account, identity))
	s.NotZero(account.ID)
	s.Equal(account.ID, identity.AccountID)

	got, err := s.storage.GetIdentityByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(account.ID, got.AccountID)
	s.Equal("alice@example.com", got.Email)
	s.False(got.EmailVerified)

	stored, err := s.storage.GetAccount(s.ctx, account.ID)
	s.Require().NoError(err)
	s.Equal(model.ClassMage, stored.Class)
}

func (s *Suite) TestCreateAccountWithIdentityRejectsDuplicateUsername() {
	first := &model.Identity{Username: "alice", PasswordHash: "hash", CreatedAt: s.now}
	s.Require().NoError(s.storage.CreateAccountWithIdentity(s.ctx, &model.Account{Username: "alice", Class: model.ClassMage}, first))

	second := &model.Identity{Username: "alice", PasswordHash: "hash", CreatedAt: s.now}
	err := s.storage.CreateAccountWithIdentity(s.ctx, &model.Account{Username: "alice", Class: model.ClassRogue}, second)
	s.ErrorIs(err, model.ErrUsernameExists)

	n, err := s.storage.CountAccounts(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *Suite) TestSaveIdentityUpdates() {
	identity := &model.Identity{Username: "alice", PasswordHash: "hash", CreatedAt: s.now}
	s.Require().NoError(s.storage.CreateAccountWithIdentity(s.ctx, &model.Account{Username: "alice", Class: model.ClassMage}, identity))

	identity.EmailVerified = true
	s.Require().NoError(s.storage.SaveIdentity(s.ctx, identity))

	got, err := s.storage.GetIdentity(s.ctx, identity.AccountID)
	s.Require().NoError(err)
	s.True(got.EmailVerified)
}

func (s *Suite) TestGetIdentityByUsernameNotFound() {
	_, err := s.storage.GetIdentityByUsername(s.ctx, "nobody")
	s.ErrorIs(err, model.ErrIdentityNotFound)
}

// Session tests

func (s *Suite) newSession(id string, expiresAt time.Time) *model.AuthSession {
	return &model.AuthSession{
		ID:         id,
		AccountID:  1,
		Identifier: "alice",
		Gates:      model.Gates{CredentialsOK: true},
		CreatedAt:  s.now,
		ExpiresAt:  expiresAt,
		Challenge:  &model.AuthChallenge{ExpiresAt: s.now.Add(5 * time.Minute), RemainingAttempts: 3},
		Verification: &model.EmailVerification{
			TokenHash: "abc", ExpiresAt: s.now.Add(15 * time.Minute), LastSentAt: s.now,
		},
	}
}

func (s *Suite) TestSaveAndGetSession() {
	session := s.newSession("sess-1", s.now.Add(15*time.Minute))
	s.Require().NoError(s.sessions.SaveSession(s.ctx, session))

	got, err := s.sessions.GetSession(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal(session.AccountID, got.AccountID)
	s.Equal(session.Gates, got.Gates)
	s.Require().NotNil(got.Challenge)
	s.Equal(3, got.Challenge.RemainingAttempts)
	s.True(session.Challenge.ExpiresAt.Equal(got.Challenge.ExpiresAt))
	s.Require().NotNil(got.Verification)
	s.Equal("abc", got.Verification.TokenHash)
}

func (s *Suite) TestGetSessionReturnsCopy() {
	session := s.newSession("sess-1", s.now.Add(15*time.Minute))
	s.Require().NoError(s.sessions.SaveSession(s.ctx, session))

	got, err := s.sessions.GetSession(s.ctx, "sess-1")
	s.Require().NoError(err)
	got.Challenge.RemainingAttempts = 0

	again, err := s.sessions.GetSession(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal(3, again.Challenge.RemainingAttempts)
}

func (s *Suite) TestGetSessionNotFound() {
	_, err := s.sessions.GetSession(s.ctx, "missing")
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *Suite) TestDeleteSession() {
	s.Require().NoError(s.sessions.SaveSession(s.ctx, s.newSession("sess-1", s.now.Add(time.Minute))))
	s.Require().NoError(s.sessions.DeleteSession(s.ctx, "sess-1"))

	_, err := s.sessions.GetSession(s.ctx, "sess-1")
	s.ErrorIs(err, model.ErrSessionNotFound)

	// deleting twice is fine
	s.NoError(s.sessions.DeleteSession(s.ctx, "sess-1"))
}

func (s *Suite) TestDeleteExpiredSessions() {
	s.Require().NoError(s.sessions.SaveSession(s.ctx, s.newSession("old", s.now.Add(-time.Minute))))
	s.Require().NoError(s.sessions.SaveSession(s.ctx, s.newSession("edge", s.now)))
	s.Require().NoError(s.sessions.SaveSession(s.ctx, s.newSession("live", s.now.Add(time.Hour))))

	removed, err := s.sessions.DeleteExpiredSessions(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(2, removed)

	_, err = s.sessions.GetSession(s.ctx, "old")
	s.ErrorIs(err, model.ErrSessionNotFound)
	_, err = s.sessions.GetSession(s.ctx, "live")
	s.NoError(err)
}
