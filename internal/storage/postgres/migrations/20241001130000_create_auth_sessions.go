package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS auth_sessions (
				id                VARCHAR(64) PRIMARY KEY,
				account_id        BIGINT NOT NULL,
				identifier        VARCHAR(64) NOT NULL,
				credentials_ok    BOOLEAN NOT NULL DEFAULT FALSE,
				second_factor_ok  BOOLEAN NOT NULL DEFAULT FALSE,
				email_ok          BOOLEAN NOT NULL DEFAULT FALSE,
				terminal          VARCHAR(16) NOT NULL DEFAULT '',
				challenge         JSONB,
				verification      JSONB,
				credential_id     VARCHAR(64) NOT NULL DEFAULT '',
				created_at        TIMESTAMPTZ NOT NULL,
				expires_at        TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_auth_sessions_expires_at ON auth_sessions(expires_at);
		`); err != nil {
			return fmt.Errorf("failed to create auth_sessions table: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS auth_sessions;`); err != nil {
			return fmt.Errorf("failed to drop auth_sessions table: %w", err)
		}
		return nil
	})
}
