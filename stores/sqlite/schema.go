package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Schema version for migrations
const currentSchemaVersion = 1

// Schema definitions
const (
	createChangesTable = `
		CREATE TABLE IF NOT EXISTS changes (
			position INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			data BLOB NOT NULL,
			timestamp DATETIME NOT NULL
		)`

	createChangesTypeIndex = `CREATE INDEX IF NOT EXISTS idx_changes_type ON changes(type)`

	createBusInfoTable = `
		CREATE TABLE IF NOT EXISTS bus_info (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`

	createSchemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
)

// ErrDomainMismatch is returned when a database file belongs to another domain
var ErrDomainMismatch = errors.New("sqlite: database belongs to another domain")

// migrate applies database migrations if needed. The whole check runs under
// the write lock, so processes opening a fresh file at once take turns and
// the later ones find the schema already in place.
func migrate(ctx context.Context, db *sql.DB) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if _, err = conn.ExecContext(ctx, createSchemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err = conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version < 1 {
		if err = migrateV1(ctx, conn); err != nil {
			return err
		}
	}

	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// migrateV1 applies the initial schema inside the caller's transaction
func migrateV1(ctx context.Context, conn *sql.Conn) error {
	statements := []string{
		createChangesTable,
		createChangesTypeIndex,
		createBusInfoTable,
		"INSERT OR IGNORE INTO schema_version (version) VALUES (1)",
	}

	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

// claimDomain stores the domain id on first use and checks it afterwards.
// Two processes racing to claim the same id both succeed.
func claimDomain(ctx context.Context, db *sql.DB, id uint32) error {
	want := strconv.FormatUint(uint64(id), 10)

	_, err := db.ExecContext(ctx,
		"INSERT INTO bus_info (name, value) VALUES ('domain_id', ?) ON CONFLICT(name) DO NOTHING", want)
	if err != nil {
		return fmt.Errorf("record domain: %w", err)
	}

	var have string
	if err := db.QueryRowContext(ctx, "SELECT value FROM bus_info WHERE name = 'domain_id'").Scan(&have); err != nil {
		return fmt.Errorf("read domain: %w", err)
	}
	if have != want {
		return fmt.Errorf("%w: have %s, want %s", ErrDomainMismatch, have, want)
	}
	return nil
}
