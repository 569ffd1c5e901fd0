// Package digest computes and checks SHA-256 sums of uploaded artifacts.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sum reads r to EOF and returns the hex SHA-256 of its content and the
// number of bytes read.
func Sum(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// File returns the hex SHA-256 and size of the file at path.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return Sum(f)
}

// Verify confirms that the SHA-256 of r matches expectedHex.
func Verify(r io.Reader, expectedHex string) error {
	got, _, err := Sum(r)
	if err != nil {
		return fmt.Errorf("digest: read: %w", err)
	}
	if got != expectedHex {
		return fmt.Errorf("digest: sha256 mismatch: got %s, expected %s", got, expectedHex)
	}
	return nil
}
