package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	databus "github.com/jilio/shapes"
	_ "modernc.org/sqlite"
)

// Store implements databus.EventStore on a SQLite file. Every process that
// opens the same file shares one bus, which is how publishers and
// subscribers of a domain find each other.
//
// Changes are kept with integer positions internally and exposed as opaque
// string offsets.
type Store struct {
	db          *sql.DB
	cfg         *config
	logger      Logger
	metricsHook MetricsHook

	// Prepared statements
	appendStmt   *sql.Stmt
	readStmt     *sql.Stmt
	readFromStmt *sql.Stmt
}

var _ databus.EventStore = (*Store)(nil)

// dbOpener is used to open database connections, injectable for testing
var dbOpener = sql.Open

// PathForDomain returns the database file for a domain inside dir
func PathForDomain(dir string, domainID uint32) string {
	return filepath.Join(dir, fmt.Sprintf("shapes-domain-%d.db", domainID))
}

// Open opens the database of a domain inside dir, creating it if needed
func Open(dir string, domainID uint32, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("sqlite: directory is required")
	}
	opts = append(opts, WithDomainID(domainID))
	return New(PathForDomain(dir, domainID), opts...)
}

// New creates a new Store with the given path and options.
//
// Note: When WithAutoMigrate is enabled (the default), migrations run with
// context.Background() and are not cancellable, so they never leave the
// database half migrated.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}

	// Validate path to prevent URI parameter injection
	if path != ":memory:" && (strings.Contains(path, "?") || strings.Contains(path, "#")) {
		return nil, errors.New("sqlite: path cannot contain '?' or '#' characters")
	}

	cfg := defaultConfig()
	cfg.path = path
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := dbOpener("sqlite", dataSourceName(cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// Errors here indicate filesystem issues (read-only, permissions)
	if err := checkConnection(db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: configure connection: %w", err)
	}

	if cfg.autoMigrate {
		if err := migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	if cfg.domainID != nil {
		if err := claimDomain(context.Background(), db, *cfg.domainID); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %w", err)
		}
	}

	return newFromDB(db, cfg)
}

// newFromDB creates a Store from an existing database connection
func newFromDB(db *sql.DB, cfg *config) (*Store, error) {
	store := &Store{
		db:          db,
		cfg:         cfg,
		logger:      cfg.logger,
		metricsHook: cfg.metricsHook,
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: prepare statements: %w", err)
	}

	if store.logger != nil {
		store.logger.Infow("opened sqlite store", "path", cfg.path)
	}

	return store, nil
}

// connectionPragmas are set on every pooled connection. busy_timeout comes
// first so switching the journal mode waits on a concurrent opener.
func connectionPragmas(cfg *config) []string {
	pragmas := []string{fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout.Milliseconds())}
	if cfg.path == ":memory:" {
		return pragmas
	}
	return append(pragmas,
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"cache_size(-16000)", // 16MB cache
		"temp_store(MEMORY)",
	)
}

// dataSourceName builds the DSN. The driver runs each _pragma on every new
// connection, unlike PRAGMA statements sent through the pool.
func dataSourceName(cfg *config) string {
	params := url.Values{}
	if cfg.path == ":memory:" {
		// Shared cache lets multiple connections see one in-memory database
		params.Set("mode", "memory")
		params.Set("cache", "shared")
	}
	for _, pragma := range connectionPragmas(cfg) {
		params.Add("_pragma", pragma)
	}
	return "file:" + cfg.path + "?" + params.Encode()
}

// checkConnection opens one connection and confirms the pragmas took
func checkConnection(db *sql.DB, cfg *config) error {
	var timeout int64
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		return fmt.Errorf("read busy_timeout: %w", err)
	}
	if want := cfg.busyTimeout.Milliseconds(); timeout != want {
		return fmt.Errorf("busy_timeout is %d, want %d", timeout, want)
	}
	if cfg.path == ":memory:" {
		return nil
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("read journal_mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("journal_mode is %q, want wal", mode)
	}
	return nil
}

// prepareStatements prepares all SQL statements
func (s *Store) prepareStatements() error {
	type stmtDef struct {
		dest **sql.Stmt
		sql  string
	}

	stmts := []stmtDef{
		{&s.appendStmt, "INSERT INTO changes (type, data, timestamp) VALUES (?, ?, ?)"},
		{&s.readStmt, "SELECT position, type, data, timestamp FROM changes WHERE position > ? ORDER BY position LIMIT ?"},
		{&s.readFromStmt, "SELECT position, type, data, timestamp FROM changes WHERE position > ? ORDER BY position"},
	}

	for _, def := range stmts {
		stmt, err := s.db.Prepare(def.sql)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		*def.dest = stmt
	}

	return nil
}

// parseOffset converts an Offset to an int64 position.
// OffsetOldest maps to 0, otherwise parses the numeric string.
func parseOffset(offset databus.Offset) (int64, error) {
	if offset == databus.OffsetOldest {
		return 0, nil
	}
	return strconv.ParseInt(string(offset), 10, 64)
}

// formatOffset converts an int64 position to an Offset.
func formatOffset(position int64) databus.Offset {
	return databus.Offset(strconv.FormatInt(position, 10))
}

// Append stores a change and returns its assigned offset.
func (s *Store) Append(ctx context.Context, event *databus.Event) (databus.Offset, error) {
	start := time.Now()

	result, err := s.appendStmt.ExecContext(ctx, event.Type, []byte(event.Data), event.Timestamp.UTC())
	if err != nil {
		if s.metricsHook != nil {
			s.metricsHook.OnAppend(time.Since(start), err)
		}
		if s.logger != nil {
			s.logger.Errorw("append failed", "type", event.Type, "error", err)
		}
		return "", fmt.Errorf("sqlite: append change: %w", err)
	}

	// LastInsertId is always supported by the SQLite driver
	position, _ := result.LastInsertId()
	offset := formatOffset(position)

	if s.metricsHook != nil {
		s.metricsHook.OnAppend(time.Since(start), nil)
	}

	if s.logger != nil {
		s.logger.Debugw("appended change", "offset", offset, "type", event.Type)
	}

	return offset, nil
}

// rowScanner abstracts sql.Rows for testing
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Read returns changes after the given offset.
func (s *Store) Read(ctx context.Context, from databus.Offset, limit int) ([]*databus.StoredEvent, databus.Offset, error) {
	start := time.Now()
	var events []*databus.StoredEvent
	var err error

	defer func() {
		if s.metricsHook != nil {
			s.metricsHook.OnRead(time.Since(start), len(events), err)
		}
	}()

	position, err := parseOffset(from)
	if err != nil {
		err = fmt.Errorf("sqlite: invalid offset: %w", err)
		return nil, from, err
	}

	var rows *sql.Rows
	if limit <= 0 {
		rows, err = s.readFromStmt.QueryContext(ctx, position)
	} else {
		rows, err = s.readStmt.QueryContext(ctx, position, limit)
	}
	if err != nil {
		err = fmt.Errorf("sqlite: read changes: %w", err)
		return nil, from, err
	}

	events, err = s.scanEvents(rows)
	if err != nil {
		return nil, from, err
	}

	nextOffset := from
	if len(events) > 0 {
		nextOffset = events[len(events)-1].Offset
		if s.logger != nil {
			s.logger.Debugw("read changes", "from", from, "limit", limit, "count", len(events))
		}
	}

	return events, nextOffset, nil
}

// scanEvents scans rows into events, extracted for testability
func (s *Store) scanEvents(rows rowScanner) ([]*databus.StoredEvent, error) {
	defer rows.Close()

	var events []*databus.StoredEvent
	for rows.Next() {
		var position int64
		var data []byte
		event := &databus.StoredEvent{}
		if err := rows.Scan(&position, &event.Type, &data, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scan change: %w", err)
		}
		event.Offset = formatOffset(position)
		event.Data = data
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate changes: %w", err)
	}

	return events, nil
}

// Close closes the database connection and releases resources.
// Prepared statement close errors are ignored; db.Close handles cleanup.
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.appendStmt,
		s.readStmt,
		s.readFromStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}

	if s.logger != nil {
		s.logger.Infow("closing sqlite store", "path", s.cfg.path)
	}

	return s.db.Close()
}
