package storage

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "go-image-tagger/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanImages(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"b.PNG",
		"a.jpg",
		"notes.txt",
		"album/c.webp",
		".hidden/d.jpg",
		"album/.e.png",
	}
	for _, f := range files {
		path := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	got, err := ScanImages(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "album", "c.webp"),
		filepath.Join(root, "b.PNG"),
	}, got)
}

func TestScanImages_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpeg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	got, err := ScanImages(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, got)
}

func TestScanImages_MissingRoot(t *testing.T) {
	_, err := ScanImages(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
