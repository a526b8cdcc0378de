package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/mcoot/rankdir/internal/model"
)

type accountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Username      string    `bun:"username,notnull"`
	Class         string    `bun:"class,notnull"`
	Score         int64     `bun:"score,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// rankedAccountRow is read from the ranking subquery aliased as r
type rankedAccountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:r"`
	ID            int64     `bun:"id,pk"`
	Username      string    `bun:"username"`
	Class         string    `bun:"class"`
	Score         int64     `bun:"score"`
	UpdatedAt     time.Time `bun:"updated_at"`
	Rank          int       `bun:"rank"`
}

func (r *rankedAccountRow) toModel() model.Account {
	return model.Account{
		ID:        model.AccountID(r.ID),
		Username:  r.Username,
		Class:     model.Class(r.Class),
		Score:     r.Score,
		Rank:      r.Rank,
		UpdatedAt: r.UpdatedAt,
	}
}

type identityRow struct {
	bun.BaseModel    `bun:"table:identities,alias:i"`
	AccountID        int64     `bun:"account_id,pk"`
	Username         string    `bun:"username,notnull,unique"`
	Email            string    `bun:"email,notnull"`
	PasswordHash     string    `bun:"password_hash,notnull"`
	TOTPSecret       string    `bun:"totp_secret,notnull"`
	TwoFactorEnabled bool      `bun:"two_factor_enabled,notnull"`
	EmailVerified    bool      `bun:"email_verified,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
	UpdatedAt        time.Time `bun:"updated_at,notnull"`
}

func newIdentityRow(i *model.Identity) *identityRow {
	return &identityRow{
		AccountID:        int64(i.AccountID),
		Username:         i.Username,
		Email:            i.Email,
		PasswordHash:     i.PasswordHash,
		TOTPSecret:       i.TOTPSecret,
		TwoFactorEnabled: i.TwoFactorEnabled,
		EmailVerified:    i.EmailVerified,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
	}
}

func (r *identityRow) toModel() *model.Identity {
	return &model.Identity{
		AccountID:        model.AccountID(r.AccountID),
		Username:         r.Username,
		Email:            r.Email,
		PasswordHash:     r.PasswordHash,
		TOTPSecret:       r.TOTPSecret,
		TwoFactorEnabled: r.TwoFactorEnabled,
		EmailVerified:    r.EmailVerified,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type sessionRow struct {
	bun.BaseModel  `bun:"table:auth_sessions,alias:s"`
	ID             string                   `bun:"id,pk"`
	AccountID      int64                    `bun:"account_id,notnull"`
	Identifier     string                   `bun:"identifier,notnull"`
	CredentialsOK  bool                     `bun:"credentials_ok,notnull"`
	SecondFactorOK bool                     `bun:"second_factor_ok,notnull"`
	EmailOK        bool                     `bun:"email_ok,notnull"`
	Terminal       string                   `bun:"terminal,notnull"`
	Challenge      *model.AuthChallenge     `bun:"challenge,type:jsonb"`
	Verification   *model.EmailVerification `bun:"verification,type:jsonb"`
	CredentialID   string                   `bun:"credential_id,notnull"`
	CreatedAt      time.Time                `bun:"created_at,notnull"`
	ExpiresAt      time.Time                `bun:"expires_at,notnull"`
}

func newSessionRow(s *model.AuthSession) *sessionRow {
	return &sessionRow{
		ID:             s.ID,
		AccountID:      int64(s.AccountID),
		Identifier:     s.Identifier,
		CredentialsOK:  s.Gates.CredentialsOK,
		SecondFactorOK: s.Gates.SecondFactorOK,
		EmailOK:        s.Gates.EmailOK,
		Terminal:       string(s.Terminal),
		Challenge:      s.Challenge,
		Verification:   s.Verification,
		CredentialID:   s.CredentialID,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
	}
}

func (r *sessionRow) toModel() *model.AuthSession {
	return &model.AuthSession{
		ID:         r.ID,
		AccountID:  model.AccountID(r.AccountID),
		Identifier: r.Identifier,
		Gates: model.Gates{
			CredentialsOK:  r.CredentialsOK,
			SecondFactorOK: r.SecondFactorOK,
			EmailOK:        r.EmailOK,
		},
		Terminal:     model.TerminalMark(r.Terminal),
		Challenge:    r.Challenge,
		Verification: r.Verification,
		CredentialID: r.CredentialID,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}
