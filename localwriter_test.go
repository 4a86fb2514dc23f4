package transload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitrise-io/go-transload/internal/localfs"
)

func TestLocalWriterTruncatesCreatesAndWritesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	// pre-existing content must be truncated away
	require.NoError(t, os.WriteFile(path, []byte("stale data that should be gone"), 0o644))

	w, err := newLocalWriter(localfs.Real{}, path)
	require.NoError(t, err)

	require.NoError(t, w.Write([]byte("hello ")))
	require.NoError(t, w.Write([]byte("world")))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	res := w.Result()
	assert.Equal(t, path, res.Path)
	assert.Equal(t, uint64(11), res.Size)
}

func TestLocalWriterCreateFailurePropagates(t *testing.T) {
	_, err := newLocalWriter(localfs.Real{}, filepath.Join(t.TempDir(), "missing-dir", "out.bin"))
	assert.Error(t, err)
}

func TestLocalWriterAbortRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.bin")

	w, err := newLocalWriter(localfs.Real{}, path)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("only some of the bytes")))

	w.Abort()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
