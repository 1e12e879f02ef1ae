// Package sqlite implements the flo data store backed by a SQLite database.
// It keeps the delivery history of the broadcaster and a small key/value
// table used as the client configuration store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database connection for all flo persistence operations.
type Store struct {
	db *sql.DB

	insertDeliveryStmt *sql.Stmt
	pruneDeliveryStmt  *sql.Stmt

	historyLimit int
	inserts      atomic.Int64
}

const defaultMaxOpenConns = 4
const defaultMaxIdleConns = 4
const defaultHistoryLimit = 500

// pruneEvery controls how often inserts trim the history table.
const pruneEvery = 50

const insertDeliveryQuery = `INSERT INTO deliveries (id, resource_url, bytes, clients, delivered_at) VALUES (?, ?, ?, ?, ?)`
const pruneDeliveryQuery = `
DELETE FROM deliveries
WHERE id NOT IN (
	SELECT id FROM deliveries ORDER BY delivered_at DESC, id DESC LIMIT ?
)`

// OpenOptions controls SQLite connection pool sizing and history retention.
type OpenOptions struct {
	MaxOpenConns int
	MaxIdleConns int
	HistoryLimit int
}

// Open creates or opens the SQLite database at path, runs migrations, and
// enables WAL mode for improved concurrent read performance.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenWithOptions creates or opens the SQLite database at path with tunable
// connection pool settings, runs migrations, and enables WAL mode.
func OpenWithOptions(path string, opts OpenOptions) (*Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	// Append per-connection PRAGMAs to the DSN so every pooled connection gets them.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=synchronous(normal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	maxOpenConns := opts.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = defaultMaxOpenConns
	}
	maxIdleConns := opts.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	// journal_mode and busy_timeout are database-wide; set them once here.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite setup (%s): %w", pragma, err)
		}
	}

	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	s := &Store{db: db, historyLimit: historyLimit}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepareStatements(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	stmtErr := s.closePreparedStatements()
	return errors.Join(stmtErr, s.db.Close())
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error
	if s.insertDeliveryStmt, err = s.db.PrepareContext(ctx, insertDeliveryQuery); err != nil {
		return fmt.Errorf("prepare insert delivery query: %w", err)
	}
	if s.pruneDeliveryStmt, err = s.db.PrepareContext(ctx, pruneDeliveryQuery); err != nil {
		closeErr := s.closePreparedStatements()
		return errors.Join(fmt.Errorf("prepare prune delivery query: %w", err), closeErr)
	}
	return nil
}

func (s *Store) closePreparedStatements() error {
	var err error
	err = errors.Join(err, closeStmt(&s.insertDeliveryStmt))
	err = errors.Join(err, closeStmt(&s.pruneDeliveryStmt))
	return err
}

func closeStmt(stmt **sql.Stmt) error {
	if stmt == nil || *stmt == nil {
		return nil
	}
	err := (*stmt).Close()
	*stmt = nil
	return err
}

// Migrate creates all required tables and indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS deliveries (
	id TEXT PRIMARY KEY,
	resource_url TEXT NOT NULL,
	bytes INTEGER NOT NULL,
	clients INTEGER NOT NULL,
	delivered_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_delivered_at ON deliveries(delivered_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_deliveries_resource_url ON deliveries(resource_url);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
