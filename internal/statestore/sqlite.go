package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_state (
	key        BLOB PRIMARY KEY,
	value      BLOB NOT NULL,
	tx_id      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_versions (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	key       BLOB NOT NULL,
	tx_id     TEXT NOT NULL,
	ts        INTEGER NOT NULL,
	is_delete INTEGER NOT NULL DEFAULT 0,
	value     BLOB
);
CREATE INDEX IF NOT EXISTS idx_ledger_versions_key ON ledger_versions (key, seq);
`

// SQLiteStore is a single-file durable Store for single-node deployments.
// Timestamps are stored as epoch milliseconds. A process-wide mutex gates
// writes; the driver handles its own locking but serialising here avoids
// SQLITE_BUSY churn under concurrent mutations.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the database at path and applies
// the schema.
func NewSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, tx TxContext, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback() //nolint:errcheck

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO ledger_state (key, value, tx_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value, tx_id = excluded.tx_id, updated_at = excluded.updated_at`,
		[]byte(key), value, tx.ID, tx.At.UnixMilli(),
	); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO ledger_versions (key, tx_id, ts, is_delete, value)
		 VALUES (?, ?, ?, 0, ?)`,
		[]byte(key), tx.ID, tx.At.UnixMilli(), value,
	); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit state tx: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM ledger_state WHERE key = ?`, []byte(key),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return value, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, tx TxContext, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback() //nolint:errcheck

	if _, err := dbtx.ExecContext(ctx,
		`DELETE FROM ledger_state WHERE key = ?`, []byte(key),
	); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO ledger_versions (key, tx_id, ts, is_delete, value)
		 VALUES (?, ?, ?, 1, NULL)`,
		[]byte(key), tx.ID, tx.At.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, key string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_id, ts, is_delete, value
		 FROM ledger_versions WHERE key = ? ORDER BY seq ASC`,
		[]byte(key),
	)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Version
	for rows.Next() {
		var (
			v      Version
			millis int64
			del    int
		)
		if err := rows.Scan(&v.TxID, &millis, &del, &v.Value); err != nil {
			return nil, fmt.Errorf("scan version row: %w", err)
		}
		v.At = time.UnixMilli(millis).UTC()
		v.IsDelete = del != 0
		out = append(out, v)
	}
	return out, rows.Err()
}

// Scan implements Store.
func (s *SQLiteStore) Scan(ctx context.Context, prefix string) ([]KV, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM ledger_state
		 WHERE key >= ? AND key < ? ORDER BY key ASC`,
		[]byte(prefix), scanEnd(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("query state range: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []KV
	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan state row: %w", err)
		}
		out = append(out, KV{Key: string(key), Value: value})
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
