package credential_test

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/portal-tracker/internal/credential"
)

func TestVaultRoundTrip(t *testing.T) {
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))

	require.NoError(t, vault.SetPassword("agent@example.com", "hunter2"))

	got, err := vault.Password("agent@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestVaultSetPasswordReplaces(t *testing.T) {
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))

	require.NoError(t, vault.SetPassword("agent@example.com", "old"))
	require.NoError(t, vault.SetPassword("agent@example.com", "new"))

	got, err := vault.Password("agent@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestVaultPasswordMissing(t *testing.T) {
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))

	_, err := vault.Password("nobody@example.com")
	assert.Error(t, err)
}

func TestVaultDeletePassword(t *testing.T) {
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))

	require.NoError(t, vault.SetPassword("agent@example.com", "hunter2"))
	require.NoError(t, vault.DeletePassword("agent@example.com"))

	_, err := vault.Password("agent@example.com")
	assert.Error(t, err)
}
