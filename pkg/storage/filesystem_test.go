package storage

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpen(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("statements/2026-10.csv", []byte("a,b\n"))
	require.NoError(t, err)

	f, err := store.Open(rel)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(body))
}

func TestLocalStorageKeepsTraversalInsideRoot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	rel, err := store.Save("../../escape.txt", []byte("x"))
	require.NoError(t, err)
	f, err := store.Open(rel)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	assert.Contains(t, f.Name(), dir)
}

func TestLocalStorageCleanup(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("old.csv", []byte("x"))
	require.NoError(t, err)

	deleted, err := store.CleanupOlderThan(-time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.csv"}, deleted)
}
