package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fabriziosalmi/rainroll/pkg/digest"
)

// FSStore implements ObjectStore using the local filesystem. Objects land at
// <root>/<bucket>/<key>.
type FSStore struct {
	root     string
	provider string
}

// NewFSStore creates a new filesystem-based storage backend.
func NewFSStore(root string) (*FSStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid root path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root dir: %w", err)
	}

	return &FSStore{
		root:     absRoot,
		provider: "filesystem",
	}, nil
}

func (s *FSStore) Provider() string {
	return s.provider
}

// ObjectPath returns where bucket/key is stored.
func (s *FSStore) ObjectPath(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}

func (s *FSStore) PutObject(ctx context.Context, bucket, key, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("storage: open artifact: %w", err)
	}
	defer src.Close()

	fullPath := s.ObjectPath(bucket, key)
	dir := filepath.Dir(fullPath)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	// Atomic write: write to temp file then rename (same partition)
	tmpFile, err := os.CreateTemp(dir, "rainroll-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName) // Cleanup (ignored if renamed successfully)

	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("storage: chmod: %w", err)
	}

	if _, err := io.Copy(tmpFile, readerCtx{ctx: ctx, r: src}); err != nil {
		tmpFile.Close()
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := verifyCopy(path, tmpName); err != nil {
		return err
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// verifyCopy checks that the object written at copied matches the artifact.
func verifyCopy(artifact, copied string) error {
	want, _, err := digest.File(artifact)
	if err != nil {
		return fmt.Errorf("storage: hash artifact: %w", err)
	}
	f, err := os.Open(copied)
	if err != nil {
		return fmt.Errorf("storage: open copy: %w", err)
	}
	defer f.Close()
	if err := digest.Verify(f, want); err != nil {
		return fmt.Errorf("storage: verify copy: %w", err)
	}
	return nil
}

// readerCtx stops a copy once ctx is cancelled.
type readerCtx struct {
	ctx context.Context
	r   io.Reader
}

func (r readerCtx) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
