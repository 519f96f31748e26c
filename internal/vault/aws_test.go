package vault_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/securekv/internal/vault"
	"github.com/systmms/securekv/pkg/securekv"
	"github.com/systmms/securekv/pkg/securekv/kvtest"
	"github.com/systmms/securekv/tests/fakes"
)

func newFakeSecretsManager(t *testing.T, client *fakes.FakeSecretsManagerClient, kmsKeyID string) *vault.AWSSecretsManager {
	t.Helper()
	v, err := vault.NewAWSSecretsManager(context.Background(), vault.AWSSecretsManagerConfig{
		Prefix:   "app",
		KMSKeyID: kmsKeyID,
		ProbeTTL: -1,
	}, vault.WithSecretsManagerClient(client))
	require.NoError(t, err)
	return v
}

func newFakeParameterStore(t *testing.T, client *fakes.FakeSSMClient) *vault.AWSParameterStore {
	t.Helper()
	v, err := vault.NewAWSParameterStore(context.Background(), vault.AWSParameterStoreConfig{
		Path:     "/prod/app/",
		ProbeTTL: -1,
	}, vault.WithSSMClient(client))
	require.NoError(t, err)
	return v
}

func TestAWSSecretsManagerContract(t *testing.T) {
	t.Parallel()

	kvtest.RunVaultContract(t, func(t *testing.T) securekv.Vault {
		return newFakeSecretsManager(t, fakes.NewFakeSecretsManagerClient(), "")
	})
}

func TestAWSParameterStoreContract(t *testing.T) {
	t.Parallel()

	kvtest.RunVaultContract(t, func(t *testing.T) securekv.Vault {
		return newFakeParameterStore(t, fakes.NewFakeSSMClient())
	})
}

func TestAWSSecretsManagerCreatesOnFirstSet(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	v := newFakeSecretsManager(t, client, "alias/securekv")
	ctx := context.Background()

	require.NoError(t, v.SetItem(ctx, "session", "one"))
	require.NoError(t, v.SetItem(ctx, "session", "two"))

	name := "app-" + hex.EncodeToString([]byte("session"))
	data := client.Secrets[name]
	require.NotNil(t, data)
	assert.Equal(t, "two", aws.ToString(data.SecretString))
	assert.Equal(t, "alias/securekv", aws.ToString(data.KmsKeyId))
	require.Len(t, data.Tags, 1)
	assert.Equal(t, "managed-by", aws.ToString(data.Tags[0].Key))
}

func TestAWSSecretsManagerCreateRace(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.CreateRaceOnce = true
	v := newFakeSecretsManager(t, client, "")

	require.NoError(t, v.SetItem(context.Background(), "session", "mine"))

	got, ok, err := v.GetItem(context.Background(), "session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mine", got, "losing the create race still writes our value")
}

func TestAWSSecretsManagerAvailability(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	v := newFakeSecretsManager(t, client, "")
	assert.True(t, v.IsAvailable(context.Background()))

	client.ListErr = fakes.AWSAccessDeniedError()
	assert.False(t, v.IsAvailable(context.Background()))
	assert.Error(t, v.Validate(context.Background()))
}

func TestAWSSecretsManagerAccessDenied(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.AddError("app-"+hex.EncodeToString([]byte("session")), fakes.AWSAccessDeniedError())
	v := newFakeSecretsManager(t, client, "")

	_, _, err := v.GetItem(context.Background(), "session")
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrAccessDenied)
}

func TestAWSParameterStoreNaming(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSSMClient()
	v := newFakeParameterStore(t, client)

	require.NoError(t, v.SetItem(context.Background(), "session", "payload"))

	name := "/prod/app/" + hex.EncodeToString([]byte("session"))
	data, ok := client.Parameters[name]
	require.True(t, ok, "parameter stored under the path prefix")
	assert.Equal(t, ssmtypes.ParameterTypeSecureString, data.Type)
}

func TestAWSParameterStoreDecrypts(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSSMClient()
	client.AddSecureStringParameter("/prod/app/"+hex.EncodeToString([]byte("preset")), "plain")
	v := newFakeParameterStore(t, client)

	got, ok, err := v.GetItem(context.Background(), "preset")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "plain", got)
}

func TestAWSParameterStoreAvailability(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSSMClient()
	v := newFakeParameterStore(t, client)
	assert.True(t, v.IsAvailable(context.Background()))

	client.DescribeErr = fakes.AWSAccessDeniedError()
	assert.False(t, v.IsAvailable(context.Background()))
}
