// Package artifact stores the binary artifacts (evidence photos, disk
// images) attached to evidence records.
//
// Artifacts are write-once: Put fails on an existing key so a stored
// artifact can never be silently replaced. Every driver computes the
// artifact's SHA-256 on ingest and serves it back on reads, which is what
// the integrity verifier compares against the hash recorded on the evidence
// record.
package artifact

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

var (
	// ErrNotFound is returned when no artifact exists under a key.
	ErrNotFound = errors.New("artifact: not found")
	// ErrAlreadyExists is returned by Put when the key is already taken.
	ErrAlreadyExists = errors.New("artifact: already exists")
)

// Info describes a stored artifact.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	SHA256       string    `json:"sha256"`
	LastModified time.Time `json:"lastModified"`
}

// Store is the write-once artifact store consumed by the upload handler and
// the integrity verifier.
type Store interface {
	// Put stores a new artifact under key, computing its SHA-256 along the
	// way. Fails with ErrAlreadyExists when the key is taken.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)

	// Get returns the artifact's metadata and contents, or ErrNotFound.
	// The caller closes the reader.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)

	// Stat returns metadata only, or ErrNotFound.
	Stat(ctx context.Context, key string) (Info, error)

	// Driver reports the backend in use.
	Driver() Driver
}
