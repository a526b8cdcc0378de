// Package seed fills an empty directory with fake accounts for development.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/mcoot/rankdir/internal/model"
	"github.com/mcoot/rankdir/internal/storage"
)

// MaxScore bounds generated scores
const MaxScore = 10000

// Generator produces deterministic fake accounts from a seed
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator. The same seed yields the same accounts.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(uint64(seed))}
}

// Account returns one fake directory entry without an id
func (g *Generator) Account() model.Account {
	return model.Account{
		Username: g.faker.Username(),
		Class:    model.Classes[g.faker.Number(0, len(model.Classes)-1)],
		Score:    int64(g.faker.Number(0, MaxScore)),
	}
}

// Accounts returns n fake directory entries with distinct usernames
func (g *Generator) Accounts(n int) []model.Account {
	seen := make(map[string]int, n)
	out := make([]model.Account, 0, n)
	for len(out) < n {
		a := g.Account()
		if c, dup := seen[a.Username]; dup {
			seen[a.Username] = c + 1
			a.Username = fmt.Sprintf("%s%d", a.Username, c+1)
		}
		seen[a.Username]++
		out = append(out, a)
	}
	return out
}

// IfEmpty adds n fake accounts when the directory has none and returns
// how many were added. Seeded accounts have no login identity.
func IfEmpty(ctx context.Context, store storage.Storage, n int, seed int64, logger *slog.Logger) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	count, err := store.CountAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	if count > 0 {
		logger.InfoContext(ctx, "directory already populated, skipping seed", slog.Int("accounts", count))
		return 0, nil
	}

	for i, account := range NewGenerator(seed).Accounts(n) {
		if err := store.CreateAccount(ctx, &account); err != nil {
			return i, fmt.Errorf("create seed account: %w", err)
		}
	}
	logger.InfoContext(ctx, "seeded directory", slog.Int("accounts", n))
	return n, nil
}
