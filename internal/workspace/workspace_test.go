package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndOpen(t *testing.T) {
	base := t.TempDir()

	_, err := Open(base, "abc")
	assert.Error(t, err)

	ws, err := Create(base, "abc")
	require.NoError(t, err)
	assert.DirExists(t, ws.Path)

	opened, err := Open(base, "abc")
	require.NoError(t, err)
	assert.Equal(t, ws.Path, opened.Path)

	require.NoError(t, ws.Remove())
	assert.NoDirExists(t, ws.Path)
}

func TestWithTempFileRemovesFile(t *testing.T) {
	ws, err := Create(t.TempDir(), "s1")
	require.NoError(t, err)

	var seen string
	err = ws.WithTempFile("team_*.yaml", []byte("name: x\n"), func(path string) error {
		seen = path
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "name: x\n", string(data))
		assert.Equal(t, ".yaml", filepath.Ext(path))
		return nil
	})
	require.NoError(t, err)
	assert.NoFileExists(t, seen)
}

func TestWithTempFileRemovesFileOnError(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("build failed")

	var seen string
	err := WithTempFile(dir, "edit_*.txt", []byte("draft"), func(path string) error {
		seen = path
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoFileExists(t, seen)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWithTempFileRemovesFileOnPanic(t *testing.T) {
	dir := t.TempDir()

	assert.Panics(t, func() {
		WithTempFile(dir, "p_*.txt", nil, func(string) error {
			panic("boom")
		})
	})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.DirExists(t, dir)
}
