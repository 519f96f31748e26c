package vault_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/securekv/internal/vault"
	"github.com/systmms/securekv/pkg/securekv"
	"github.com/systmms/securekv/pkg/securekv/kvtest"
	"github.com/systmms/securekv/tests/fakes"
)

func newFakeAzure(t *testing.T, client *fakes.FakeAzureKeyVaultClient, purge bool) *vault.AzureKeyVault {
	t.Helper()
	v, err := vault.NewAzureKeyVault(vault.AzureConfig{
		VaultURL:      "https://test-vault.vault.azure.net/",
		PurgeOnDelete: purge,
		ProbeTTL:      -1,
	}, vault.WithAzureKeyVaultClient(client), vault.WithAzurePurgeBackoff(0))
	require.NoError(t, err)
	return v
}

func azureName(key string) string {
	return "securekv-" + hex.EncodeToString([]byte(key))
}

func TestAzureKeyVaultContract(t *testing.T) {
	t.Parallel()

	kvtest.RunVaultContract(t, func(t *testing.T) securekv.Vault {
		return newFakeAzure(t, fakes.NewFakeAzureKeyVaultClient(), true)
	})
}

func TestNewAzureKeyVaultValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		url           string
		errorContains string
	}{
		{name: "missing", url: "", errorContains: "vault_url is required"},
		{name: "not_https", url: "http://vault.example", errorContains: "invalid vault_url"},
		{name: "no_host", url: "https://", errorContains: "invalid vault_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := vault.NewAzureKeyVault(vault.AzureConfig{VaultURL: tt.url},
				vault.WithAzureKeyVaultClient(fakes.NewFakeAzureKeyVaultClient()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestAzureDeleteWithoutPurgeBlocksReuse(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeAzureKeyVaultClient()
	v := newFakeAzure(t, client, false)
	ctx := context.Background()

	require.NoError(t, v.SetItem(ctx, "session", "one"))
	require.NoError(t, v.DeleteItem(ctx, "session"))
	assert.Contains(t, client.Deleted, azureName("session"))

	err := v.SetItem(ctx, "session", "two")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soft-deleted")
}

func TestAzurePurgeRetriesOnConflict(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeAzureKeyVaultClient()
	client.PurgeConflicts = 2
	v := newFakeAzure(t, client, true)
	ctx := context.Background()

	require.NoError(t, v.SetItem(ctx, "session", "one"))
	require.NoError(t, v.DeleteItem(ctx, "session"))

	assert.Equal(t, 3, client.CallCount("PurgeDeletedSecret"))
	assert.Empty(t, client.Deleted)
	require.NoError(t, v.SetItem(ctx, "session", "two"))
}

func TestAzureAvailability(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeAzureKeyVaultClient()
	v := newFakeAzure(t, client, true)
	assert.True(t, v.IsAvailable(context.Background()))

	client.AddError("securekv-probe", fakes.AzureForbiddenError())
	assert.False(t, v.IsAvailable(context.Background()))
	assert.Error(t, v.Validate(context.Background()))
}

func TestAzureErrors(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeAzureKeyVaultClient()
	client.AddError(azureName("denied"), fakes.AzureForbiddenError())
	client.AddError(azureName("busy"), fakes.AzureThrottledError())
	v := newFakeAzure(t, client, true)

	_, _, err := v.GetItem(context.Background(), "denied")
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrAccessDenied)

	err = v.SetItem(context.Background(), "busy", "x")
	require.Error(t, err)
	var verr *vault.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "azure-keyvault", verr.Vault)
	assert.Equal(t, "set", verr.Op)
}
