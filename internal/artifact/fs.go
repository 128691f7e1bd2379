package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FSStore keeps artifacts as files under a root directory with a JSON
// sidecar (`<key>.meta`) holding content type, size and digest. Data is
// streamed to a temp file and renamed into place so a partial upload never
// becomes visible.
type FSStore struct {
	root string
}

// NewFS returns a filesystem store rooted at root, creating it if needed.
func NewFS(root string) (*FSStore, error) {
	if root == "" {
		root = "./artifacts"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Driver implements Store.
func (s *FSStore) Driver() Driver { return DriverFilesystem }

type fsMeta struct {
	ContentType string    `json:"contentType,omitempty"`
	SHA256      string    `json:"sha256"`
	Size        int64     `json:"size"`
	StoredAt    time.Time `json:"storedAt"`
}

// sanitizeKey rejects keys that would escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty artifact key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return clean, nil
}

func (s *FSStore) paths(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, k)
	metaPath = dataPath + ".meta"
	return dataPath, metaPath, nil
}

// Put implements Store.
func (s *FSStore) Put(_ context.Context, key string, r io.Reader, contentType string) (Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return Info{}, fmt.Errorf("artifact %q: %w", key, ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return Info{}, fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".upload-*")
	if err != nil {
		return Info{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return Info{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return Info{}, fmt.Errorf("finalise artifact: %w", err)
	}

	now := time.Now().UTC()
	meta := fsMeta{
		ContentType: contentType,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		StoredAt:    now,
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return Info{}, fmt.Errorf("encode artifact meta: %w", err)
	}
	if err := os.WriteFile(metaPath, b, 0o640); err != nil {
		return Info{}, fmt.Errorf("write artifact meta: %w", err)
	}

	return Info{Key: key, Size: size, ContentType: contentType, SHA256: meta.SHA256, LastModified: now}, nil
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	dataPath, _, err := s.paths(key)
	if err != nil {
		return Info{}, nil, err
	}
	f, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, nil, fmt.Errorf("artifact %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Info{}, nil, fmt.Errorf("open artifact: %w", err)
	}
	return info, f, nil
}

// Stat implements Store.
func (s *FSStore) Stat(_ context.Context, key string) (Info, error) {
	_, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	b, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, fmt.Errorf("artifact %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Info{}, fmt.Errorf("read artifact meta: %w", err)
	}
	var meta fsMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		return Info{}, fmt.Errorf("decode artifact meta: %w", err)
	}
	return Info{Key: key, Size: meta.Size, ContentType: meta.ContentType, SHA256: meta.SHA256, LastModified: meta.StoredAt}, nil
}
