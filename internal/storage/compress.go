package storage

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArtifactExt is appended to a segment path to name its compressed artifact.
const ArtifactExt = ".gz"

// copyBufferSize bounds memory use while compressing, whatever the segment size.
const copyBufferSize = 32 * 1024

// ErrEmptySegment is returned by Compress for a zero-length source. No
// artifact is produced.
var ErrEmptySegment = errors.New("storage: empty segment")

// ArtifactPath returns the artifact path for a segment.
func ArtifactPath(source string) string { return source + ArtifactExt }

// Compress streams source through gzip into source+".gz". The artifact is
// written to a temp file and renamed into place, so a failed compression never
// leaves a partial artifact behind. Calling it twice for the same source
// rewrites the artifact.
//
// The artifact carries the modification time of its source, and the temp file
// lives one directory up when possible. Neither ever looks newer than a segment
// written after the source, so a newest-file scan of the archive directory
// keeps finding segments rather than artifacts.
func Compress(source string) (string, error) {
	in, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("storage: open segment: %w", err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("storage: stat segment: %w", err)
	}
	if fi.Size() == 0 {
		return "", ErrEmptySegment
	}

	target := ArtifactPath(source)
	tmp, err := createTemp(filepath.Dir(target))
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // ignored once renamed

	gw := gzip.NewWriter(tmp)
	gw.Name = filepath.Base(source)
	gw.ModTime = fi.ModTime()

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(gw, in, buf); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: gzip write: %w", err)
	}
	if err := gw.Close(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: gzip close: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	if err := os.Chtimes(target, fi.ModTime(), fi.ModTime()); err != nil {
		return "", fmt.Errorf("storage: set artifact mtime: %w", err)
	}
	return target, nil
}

// createTemp opens the temp file in the parent of dir, falling back to dir
// itself when the parent is not writable.
func createTemp(dir string) (*os.File, error) {
	if parent := filepath.Dir(dir); parent != dir {
		if f, err := os.CreateTemp(parent, ".rainroll-*.tmp"); err == nil {
			return f, nil
		}
	}
	return os.CreateTemp(dir, ".rainroll-*.tmp")
}

// Usable reports whether path exists and is non-empty, the precondition for
// uploading an artifact.
func Usable(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}
