package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS accounts (
					id          BIGSERIAL PRIMARY KEY,
					username    VARCHAR(64) NOT NULL,
					class       VARCHAR(16) NOT NULL,
					score       BIGINT NOT NULL DEFAULT 0,
					updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_accounts_score ON accounts(score DESC);
				CREATE INDEX IF NOT EXISTS idx_accounts_class ON accounts(class);

				CREATE TABLE IF NOT EXISTS identities (
					account_id          BIGINT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
					username            VARCHAR(64) NOT NULL UNIQUE,
					email               VARCHAR(255) NOT NULL DEFAULT '',
					password_hash       TEXT NOT NULL,
					totp_secret         TEXT NOT NULL DEFAULT '',
					two_factor_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
					email_verified      BOOLEAN NOT NULL DEFAULT FALSE,
					created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`); err != nil {
				return fmt.Errorf("failed to create directory tables: %w", err)
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS identities; DROP TABLE IF EXISTS accounts;`); err != nil {
			return fmt.Errorf("failed to drop directory tables: %w", err)
		}
		return nil
	})
}
