package sqlite

import (
	"context"
	"database/sql"
)

// RunMigrate runs migration on a database (exported for testing)
func RunMigrate(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db)
}

// NewFromDB creates a store from an existing db connection (exported for testing)
func NewFromDB(db *sql.DB) (*Store, error) {
	return newFromDB(db, defaultConfig())
}

// DB returns the underlying connection (exported for testing)
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetDBOpener replaces the database opener (exported for testing)
func SetDBOpener(opener func(driverName, dataSourceName string) (*sql.DB, error)) {
	dbOpener = opener
}

// ResetDBOpener restores the default opener (exported for testing)
func ResetDBOpener() {
	dbOpener = sql.Open
}
