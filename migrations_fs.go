package marketplace

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the marketplace schema. Postgres files live in
// data/sql/migrations and their SQLite counterparts in the sqlite subdirectory.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
