package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/securekv/pkg/securekv"
)

// AzureKeyVaultClientAPI defines the interface for Azure Key Vault operations
// This allows for mocking in tests
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
	PurgeDeletedSecret(ctx context.Context, name string, options *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error)
}

// AzureConfig holds Azure Key Vault-specific configuration
type AzureConfig struct {
	VaultURL           string
	Prefix             string // defaults to "securekv"
	TenantID           string
	ClientID           string
	ClientSecret       string
	CertificatePath    string
	UseManagedIdentity bool
	UserAssignedID     string // For user-assigned managed identity

	// PurgeOnDelete purges soft-deleted secrets so the name can be reused
	// by a later set.
	PurgeOnDelete bool
	ProbeTTL      time.Duration
}

// AzureOption is a functional option for configuring the Azure vault
type AzureOption func(*AzureKeyVault)

// WithAzureKeyVaultClient sets a custom Azure Key Vault client (for testing)
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureOption {
	return func(v *AzureKeyVault) {
		v.client = client
	}
}

// WithAzurePurgeBackoff sets the base delay between purge attempts.
func WithAzurePurgeBackoff(d time.Duration) AzureOption {
	return func(v *AzureKeyVault) {
		v.purgeBackoff = d
	}
}

// AzureKeyVault keeps each store entry as a Key Vault secret.
type AzureKeyVault struct {
	client       AzureKeyVaultClientAPI
	vaultURL     string
	prefix       string
	purge        bool
	purgeBackoff time.Duration
	probe        *probeCache
}

// NewAzureKeyVault creates an Azure Key Vault vault.
func NewAzureKeyVault(cfg AzureConfig, opts ...AzureOption) (*AzureKeyVault, error) {
	if cfg.VaultURL == "" {
		return nil, errors.New("vault_url is required for Azure Key Vault")
	}
	if u, err := url.Parse(cfg.VaultURL); err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid vault_url %q: use format https://vault-name.vault.azure.net/", cfg.VaultURL)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "securekv"
	}

	v := &AzureKeyVault{
		vaultURL:     cfg.VaultURL,
		prefix:       cfg.Prefix,
		purge:        cfg.PurgeOnDelete,
		purgeBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.client == nil {
		cred, err := newAzureCredential(cfg)
		if err != nil {
			return nil, err
		}
		client, err := azsecrets.NewClient(cfg.VaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		v.client = client
	}

	ttl := cfg.ProbeTTL
	if ttl == 0 {
		ttl = DefaultProbeTTL
	}
	v.probe = newProbeCache(ttl, v.probeOnce)
	return v, nil
}

// newAzureCredential picks the credential type from the configuration
func newAzureCredential(cfg AzureConfig) (azcore.TokenCredential, error) {
	var cred azcore.TokenCredential
	var err error

	switch {
	case cfg.UseManagedIdentity:
		var miOpts *azidentity.ManagedIdentityCredentialOptions
		if cfg.UserAssignedID != "" {
			miOpts = &azidentity.ManagedIdentityCredentialOptions{
				ID: azidentity.ClientID(cfg.UserAssignedID),
			}
		}
		cred, err = azidentity.NewManagedIdentityCredential(miOpts)
	case cfg.ClientSecret != "":
		if cfg.TenantID == "" || cfg.ClientID == "" {
			return nil, errors.New("tenant_id and client_id are required for service principal authentication")
		}
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	case cfg.CertificatePath != "":
		if cfg.TenantID == "" || cfg.ClientID == "" {
			return nil, errors.New("tenant_id and client_id are required for certificate authentication")
		}
		data, readErr := os.ReadFile(cfg.CertificatePath)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read certificate: %w", readErr)
		}
		certs, key, parseErr := azidentity.ParseCertificates(data, nil)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", parseErr)
		}
		cred, err = azidentity.NewClientCertificateCredential(cfg.TenantID, cfg.ClientID, certs, key, nil)
	default:
		// Azure CLI or Default Azure Credential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return cred, nil
}

func (v *AzureKeyVault) probeOnce(ctx context.Context) error {
	_, err := v.client.GetSecret(ctx, v.prefix+"-probe", "", nil)
	if err == nil || azureStatus(err) == http.StatusNotFound {
		return nil
	}
	return err
}

// Validate probes the service and returns the failure, if any.
func (v *AzureKeyVault) Validate(ctx context.Context) error {
	if err := v.probe.check(ctx); err != nil {
		return &Error{Vault: "azure-keyvault", Op: "probe", Name: v.vaultURL, Err: err}
	}
	return nil
}

func (v *AzureKeyVault) IsAvailable(ctx context.Context) bool {
	return v.probe.check(ctx) == nil
}

func (v *AzureKeyVault) SetItem(ctx context.Context, key, value string) error {
	name := itemName(v.prefix, key)
	_, err := v.client.SetSecret(ctx, name, azsecrets.SetSecretParameters{
		Value: to.Ptr(value),
		Tags:  map[string]*string{"managed-by": to.Ptr("securekv")},
	}, nil)
	if err != nil {
		if azureStatus(err) == http.StatusConflict {
			err = fmt.Errorf("secret is soft-deleted; enable purge_on_delete or recover it: %w", err)
		}
		return v.fail("set", name, err)
	}
	return nil
}

func (v *AzureKeyVault) GetItem(ctx context.Context, key string) (string, bool, error) {
	name := itemName(v.prefix, key)
	resp, err := v.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		if azureStatus(err) == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, v.fail("get", name, err)
	}
	if resp.Value == nil {
		return "", false, v.fail("get", name, errors.New("secret has no value"))
	}
	return *resp.Value, true, nil
}

func (v *AzureKeyVault) DeleteItem(ctx context.Context, key string) error {
	name := itemName(v.prefix, key)
	if _, err := v.client.DeleteSecret(ctx, name, nil); err != nil {
		if azureStatus(err) == http.StatusNotFound {
			return nil
		}
		return v.fail("delete", name, err)
	}
	if v.purge {
		if err := v.purgeDeleted(ctx, name); err != nil {
			return v.fail("purge", name, err)
		}
	}
	return nil
}

// purgeDeleted retries while the service is still completing the delete,
// which it reports as 409 Conflict.
func (v *AzureKeyVault) purgeDeleted(ctx context.Context, name string) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		_, err = v.client.PurgeDeletedSecret(ctx, name, nil)
		if err == nil || azureStatus(err) == http.StatusNotFound {
			return nil
		}
		if azureStatus(err) != http.StatusConflict {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(v.purgeBackoff * time.Duration(i+1)):
		}
	}
	return err
}

func (v *AzureKeyVault) fail(op, name string, err error) error {
	switch azureStatus(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		v.probe.invalidate()
		err = fmt.Errorf("%w: %v", ErrAccessDenied, err)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		v.probe.invalidate()
	}
	return &Error{Vault: "azure-keyvault", Op: op, Name: name, Err: err}
}

// azureStatus extracts the HTTP status of an azcore.ResponseError, or 0.
func azureStatus(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

var _ securekv.Vault = (*AzureKeyVault)(nil)
