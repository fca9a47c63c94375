package keyring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/yllada/trusttunnel-desktop/common"
)

func TestAccount(t *testing.T) {
	assert.Equal(t, "alice@vpn.example.com", Account("alice", "vpn.example.com"))
}

func TestKeyring_System(t *testing.T) {
	keyring.MockInit()
	k := New(Options{})
	require.False(t, k.useLocal)

	require.NoError(t, k.Store("alice@vpn", "secret"))
	got, err := k.Get("alice@vpn")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
	assert.True(t, k.Exists("alice@vpn"))

	require.NoError(t, k.Delete("alice@vpn"))
	_, err = k.Get("alice@vpn")
	assert.ErrorIs(t, err, common.ErrCredentialsNotFound)
	assert.NoError(t, k.Delete("alice@vpn"))
}

func TestKeyring_LocalFilePersistsEncrypted(t *testing.T) {
	file := filepath.Join(t.TempDir(), "creds")

	k := New(Options{ForceLocal: true, LocalFile: file})
	require.NoError(t, k.Store("bob@vpn", "hunter2"))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened := New(Options{ForceLocal: true, LocalFile: file})
	got, err := reopened.Get("bob@vpn")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	require.NoError(t, reopened.Delete("bob@vpn"))
	assert.False(t, New(Options{ForceLocal: true, LocalFile: file}).Exists("bob@vpn"))
}

func TestKeyring_Validation(t *testing.T) {
	k := New(Options{ForceLocal: true, LocalFile: filepath.Join(t.TempDir(), "creds")})

	assert.Error(t, k.Store("", "x"))
	assert.Error(t, k.Store("a@b", ""))
	_, err := k.Get("")
	assert.Error(t, err)
	assert.Error(t, k.Delete(""))
}

func TestDeriveKey_Stable(t *testing.T) {
	assert.Equal(t, deriveKey(), deriveKey())
	assert.Len(t, deriveKey(), 32)
}
