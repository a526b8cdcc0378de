package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/storage"
	"github.com/mcoot/rankdir/internal/storage/postgres/migrations"
)

// Storage is a Postgres-backed implementation of the storage interfaces.
// Ranks are computed with a window function at read time.
type Storage struct {
	db *bun.DB
}

// Ensure Storage implements the interfaces
var (
	_ storage.Storage      = (*Storage)(nil)
	_ storage.SessionStore = (*Storage)(nil)
)

// New connects to Postgres and optionally applies migrations
func New(ctx context.Context, cfg Config) (*Storage, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqldb.PingContext(pingCtx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewWithDB(bun.NewDB(sqldb, pgdialect.New()))
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing bun database
func NewWithDB(db *bun.DB) *Storage {
	db.RegisterModel((*accountRow)(nil), (*identityRow)(nil), (*sessionRow)(nil))
	return &Storage{db: db}
}

// Migrate applies all pending schema migrations
func (s *Storage) Migrate(ctx context.Context) error {
	migrator := migrate.NewMigrator(s.db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration tables: %w", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Ping checks the connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database pool
func (s *Storage) Close() error {
	return s.db.Close()
}

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, account *model.Account) error {
	return s.insertAccount(ctx, s.db, account)
}

func (s *Storage) CreateAccountWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.insertAccount(ctx, tx, account); err != nil {
			return err
		}
		identity.AccountID = account.ID
		if _, err := tx.NewInsert().Model(newIdentityRow(identity)).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return model.ErrUsernameExists
			}
			return err
		}
		return nil
	})
}

func (s *Storage) insertAccount(ctx context.Context, db bun.IDB, account *model.Account) error {
	row := &accountRow{
		Username:  account.Username,
		Class:     string(account.Class),
		Score:     account.Score,
		UpdatedAt: account.UpdatedAt,
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	if _, err := db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return err
	}
	account.ID = model.AccountID(row.ID)
	return nil
}

// rankedAccounts ranks the whole directory before any filter applies
func (s *Storage) rankedAccounts() *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*accountRow)(nil)).
		ColumnExpr("a.id, a.username, a.class, a.score, a.updated_at").
		ColumnExpr("RANK() OVER (ORDER BY a.score DESC) AS rank")
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	var row rankedAccountRow
	err := s.db.NewSelect().
		Model(&row).
		ModelTableExpr("(?) AS r", s.rankedAccounts()).
		Where("r.id = ?", int64(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	account := row.toModel()
	return &account, nil
}

var sortColumns = map[model.SortField]string{
	model.SortRank:     "r.rank",
	model.SortUsername: `lower(r.username) COLLATE "C"`,
	model.SortClass:    `r.class COLLATE "C"`,
	model.SortScore:    "r.score",
	model.SortID:       "r.id",
}

func (s *Storage) QueryAccounts(ctx context.Context, q model.QueryRequest) ([]model.Account, int, error) {
	column, ok := sortColumns[q.Sort]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown sort field %q", model.ErrInvalidRequest, q.Sort)
	}
	direction := "ASC"
	if q.Order == model.OrderDesc {
		direction = "DESC"
	}

	var rows []rankedAccountRow
	sel := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("(?) AS r", s.rankedAccounts())

	if q.Search != "" {
		sel = sel.Where("r.username ILIKE ?", "%"+escapeLike(q.Search)+"%")
	}
	if q.Class != "" {
		sel = sel.Where("r.class = ?", string(q.Class))
	}
	if q.MinScore != nil {
		sel = sel.Where("r.score >= ?", *q.MinScore)
	}
	if q.MaxScore != nil {
		sel = sel.Where("r.score <= ?", *q.MaxScore)
	}

	total, err := sel.
		OrderExpr("? ?", bun.Safe(column), bun.Safe(direction)).
		OrderExpr("r.id ASC").
		Limit(q.Limit).
		Offset(q.Offset()).
		ScanAndCount(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, 0, err
	}

	accounts := make([]model.Account, len(rows))
	for i := range rows {
		accounts[i] = rows[i].toModel()
	}
	return accounts, total, nil
}

func (s *Storage) CountAccounts(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*accountRow)(nil)).Count(ctx)
}

// Identity operations

func (s *Storage) SaveIdentity(ctx context.Context, identity *model.Identity) error {
	res, err := s.db.NewUpdate().
		Model(newIdentityRow(identity)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrIdentityNotFound
	}
	return nil
}

func (s *Storage) GetIdentity(ctx context.Context, id model.AccountID) (*model.Identity, error) {
	return s.getIdentity(ctx, "i.account_id = ?", int64(id))
}

func (s *Storage) GetIdentityByUsername(ctx context.Context, username string) (*model.Identity, error) {
	return s.getIdentity(ctx, "i.username = ?", username)
}

func (s *Storage) getIdentity(ctx context.Context, where string, arg any) (*model.Identity, error) {
	var row identityRow
	if err := s.db.NewSelect().Model(&row).Where(where, arg).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

// Session operations

func (s *Storage) SaveSession(ctx context.Context, session *model.AuthSession) error {
	_, err := s.db.NewInsert().
		Model(newSessionRow(session)).
		On("CONFLICT (id) DO UPDATE").
		Set("credentials_ok = EXCLUDED.credentials_ok").
		Set("second_factor_ok = EXCLUDED.second_factor_ok").
		Set("email_ok = EXCLUDED.email_ok").
		Set("terminal = EXCLUDED.terminal").
		Set("challenge = EXCLUDED.challenge").
		Set("verification = EXCLUDED.verification").
		Set("credential_id = EXCLUDED.credential_id").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

func (s *Storage) GetSession(ctx context.Context, id string) (*model.AuthSession, error) {
	var row sessionRow
	if err := s.db.NewSelect().Model(&row).Where("s.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().Model((*sessionRow)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().Model((*sessionRow)(nil)).Where("expires_at <= ?", now).Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
