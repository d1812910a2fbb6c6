package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestDirSource_OffersNewFilesOnce(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "old.png", "preexisting")

	src := NewDirSource(dir)
	require.NoError(t, src.Open(t.Context()))

	// Pre-existing frames are skipped.
	_, err := src.Frame(t.Context())
	assert.ErrorIs(t, err, ErrNoFrame)

	writeFrame(t, dir, "b.png", "second")
	writeFrame(t, dir, "a.jpg", "first")

	data, err := src.Frame(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	data, err = src.Frame(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	_, err = src.Frame(t.Context())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestDirSource_IgnoresNonImages(t *testing.T) {
	dir := t.TempDir()
	src := NewDirSource(dir)
	require.NoError(t, src.Open(t.Context()))

	writeFrame(t, dir, "notes.txt", "not a frame")
	_, err := src.Frame(t.Context())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestDirSource_OpenMissingDir(t *testing.T) {
	src := NewDirSource("/nonexistent/frames")
	assert.Error(t, src.Open(t.Context()))
}
