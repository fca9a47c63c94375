package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/trusttunnel-desktop/common"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "db", "configs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("# config\n"), 0600))
}

func TestStore_AddGetRemove(t *testing.T) {
	s, dir := openTestStore(t)
	path := filepath.Join(dir, "office.toml")
	touch(t, path)

	saved, err := s.Add(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, saved.Path)
	assert.Equal(t, "office", saved.Name)
	assert.True(t, saved.LastUsed.IsZero())

	// Re-adding renames instead of duplicating.
	_, err = s.Add(path, "Office VPN")
	require.NoError(t, err)
	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Office VPN", list[0].Name)

	require.NoError(t, s.Remove(path))
	_, err = s.Get(path)
	assert.ErrorIs(t, err, common.ErrConfigNotFound)
	assert.ErrorIs(t, s.Remove(path), common.ErrConfigNotFound)
}

func TestStore_AddMissingFile(t *testing.T) {
	s, dir := openTestStore(t)
	_, err := s.Add(filepath.Join(dir, "absent.toml"), "")
	assert.ErrorIs(t, err, common.ErrConfigNotFound)
}

func TestStore_ListMostRecentlyUsedFirst(t *testing.T) {
	s, dir := openTestStore(t)
	for _, name := range []string{"a.toml", "b.toml", "c.toml"} {
		path := filepath.Join(dir, name)
		touch(t, path)
		_, err := s.Add(path, "")
		require.NoError(t, err)
	}

	require.NoError(t, s.MarkUsed(filepath.Join(dir, "b.toml")))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.MarkUsed(filepath.Join(dir, "c.toml")))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
	assert.Equal(t, "a", list[2].Name)
	assert.False(t, list[0].LastUsed.IsZero())

	assert.ErrorIs(t, s.MarkUsed(filepath.Join(dir, "zzz.toml")), common.ErrConfigNotFound)
}

func TestStore_Persists(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "configs.db")
	path := filepath.Join(dir, "home.toml")
	touch(t, path)

	s, err := Open(dbPath)
	require.NoError(t, err)
	_, err = s.Add(path, "Home")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dbPath)
	require.NoError(t, err)
	defer s.Close()
	saved, err := s.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "Home", saved.Name)
}
