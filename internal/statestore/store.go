// Package statestore defines the versioned key-value store the custody
// engine runs against, with in-memory, SQLite and PostgreSQL
// implementations.
//
// Keys are opaque byte strings (composite keys built by the keyspace package
// contain NUL separators), values are opaque byte slices. Every write is
// attributed to a TxContext and appended to the key's version history;
// deletes append a tombstone. Scan returns current state in ascending key
// order so prefix partitions come back contiguously.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no current value exists for a key.
var ErrNotFound = errors.New("statestore: key not found")

// TxContext carries the id and timestamp of the logical transaction a write
// belongs to. Callers mint it at the boundary (API layer, CLI); the engine
// only ever consumes one, so re-executing a transaction is deterministic.
type TxContext struct {
	ID string
	At time.Time
}

// NewTxContext mints a transaction context from a random UUID and the
// current UTC time.
func NewTxContext() TxContext {
	return TxContext{ID: uuid.New().String(), At: time.Now().UTC()}
}

// Version is one entry in a key's write history, oldest first.
type Version struct {
	TxID     string
	At       time.Time
	IsDelete bool
	Value    []byte // nil for tombstones
}

// KV pairs a key with its current value, as returned by Scan.
type KV struct {
	Key   string
	Value []byte
}

// Store is the versioned state store the custody engine is written against.
// Implementations must commit each Put/Delete atomically with its history
// entry and must return Scan results ordered by key.
type Store interface {
	// Put writes value under key and records a version attributed to tx.
	Put(ctx context.Context, tx TxContext, key string, value []byte) error

	// Get returns the current value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the current value for key and records a tombstone.
	// Deleting an absent key is not an error.
	Delete(ctx context.Context, tx TxContext, key string) error

	// History returns every recorded version of key, oldest first.
	// Unknown keys yield an empty history, not an error.
	History(ctx context.Context, key string) ([]Version, error)

	// Scan returns all current entries whose key starts with prefix,
	// ordered by key ascending.
	Scan(ctx context.Context, prefix string) ([]KV, error)

	// Close releases any resources held by the store.
	Close() error
}

// scanEnd returns the exclusive upper bound of a prefix range scan.
// 0xFF never starts a UTF-8 encoded rune, so prefix+0xFF sorts after every
// key that extends prefix.
func scanEnd(prefix string) []byte {
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xFF
	return end
}
