package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore persists ledger state to PostgreSQL. It implements Store.
//
// Composite keys contain NUL bytes, which PostgreSQL TEXT rejects, so keys
// live in BYTEA columns and prefix scans run as byte range scans. The schema
// is applied by cmd/migrate (see migrations/).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresStore backed by the given connection pool.
// The pool's lifetime is owned by the store; Close closes it.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Put implements Store. The state upsert and the version row commit in a
// single transaction so history never disagrees with current state.
func (s *PostgresStore) Put(ctx context.Context, tx TxContext, key string, value []byte) error {
	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback(ctx) //nolint:errcheck

	if _, err := dbtx.Exec(ctx,
		`INSERT INTO ledger_state (key, value, tx_id, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET value = $2, tx_id = $3, updated_at = $4`,
		[]byte(key), value, tx.ID, tx.At,
	); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	if _, err := dbtx.Exec(ctx,
		`INSERT INTO ledger_versions (key, tx_id, ts, is_delete, value)
		 VALUES ($1, $2, $3, FALSE, $4)`,
		[]byte(key), tx.ID, tx.At, value,
	); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit state tx: %w", err)
	}

	s.logger.Debug("state written",
		zap.String("tx_id", tx.ID),
		zap.Int("bytes", len(value)),
	)
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM ledger_state WHERE key = $1`, []byte(key),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return value, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, tx TxContext, key string) error {
	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback(ctx) //nolint:errcheck

	if _, err := dbtx.Exec(ctx,
		`DELETE FROM ledger_state WHERE key = $1`, []byte(key),
	); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	if _, err := dbtx.Exec(ctx,
		`INSERT INTO ledger_versions (key, tx_id, ts, is_delete, value)
		 VALUES ($1, $2, $3, TRUE, NULL)`,
		[]byte(key), tx.ID, tx.At,
	); err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// History implements Store.
func (s *PostgresStore) History(ctx context.Context, key string) ([]Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tx_id, ts, is_delete, value
		 FROM ledger_versions WHERE key = $1 ORDER BY seq ASC`,
		[]byte(key),
	)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.TxID, &v.At, &v.IsDelete, &v.Value); err != nil {
			return nil, fmt.Errorf("scan version row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Scan implements Store. The prefix scan runs as a byte range scan over the
// BYTEA primary key: [prefix, prefix+0xFF).
func (s *PostgresStore) Scan(ctx context.Context, prefix string) ([]KV, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM ledger_state
		 WHERE key >= $1 AND key < $2 ORDER BY key ASC`,
		[]byte(prefix), scanEnd(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("query state range: %w", err)
	}
	defer rows.Close()

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
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
