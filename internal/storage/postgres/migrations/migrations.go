// Package migrations holds the bun schema migrations for the Postgres store.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()

func init() {
	// Migration ids are derived from the registering file names
	if err := Migrations.DiscoverCaller(); err != nil {
		panic(err)
	}
}
