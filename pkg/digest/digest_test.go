package digest_test

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriziosalmi/rainroll/pkg/digest"
)

func TestSum_MatchesSHA256(t *testing.T) {
	data := "THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG\n"
	want := sha256.Sum256([]byte(data))

	got, n, err := digest.Sum(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
	assert.Equal(t, int64(len(data)), n)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.gz")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	sum, size, err := digest.File(path)
	require.NoError(t, err)
	assert.Len(t, sum, 64)
	assert.Equal(t, int64(7), size)

	_, _, err = digest.File(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	data := "hello rainroll"
	sum := sha256.Sum256([]byte(data))
	good := hex.EncodeToString(sum[:])

	assert.NoError(t, digest.Verify(strings.NewReader(data), good))

	err := digest.Verify(strings.NewReader(data+"tampered"), good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sha256 mismatch")
}
