package fakes

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// FakeAzureKeyVaultClient is an in-memory Key Vault with soft delete. It
// satisfies vault.AzureKeyVaultClientAPI.
type FakeAzureKeyVaultClient struct {
	mu sync.Mutex

	// Secrets maps live secret names to their data
	Secrets map[string]*AzureSecretData
	// Deleted holds soft-deleted secrets until purged
	Deleted map[string]*AzureSecretData
	// Errors maps secret names to errors to return
	Errors map[string]error
	// PurgeConflicts makes the next N purges answer 409, as the service
	// does while a delete is still in progress.
	PurgeConflicts int
	// Calls counts invocations per method name
	Calls map[string]int
}

// AzureSecretData holds the data for a mock Azure Key Vault secret
type AzureSecretData struct {
	Value      *string
	ID         *string
	Attributes *azsecrets.SecretAttributes
	Tags       map[string]*string
	Versions   int
}

// NewFakeAzureKeyVaultClient creates a new mock Azure Key Vault client
func NewFakeAzureKeyVaultClient() *FakeAzureKeyVaultClient {
	return &FakeAzureKeyVaultClient{
		Secrets: make(map[string]*AzureSecretData),
		Deleted: make(map[string]*AzureSecretData),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecretString adds a string secret to the mock client
func (f *FakeAzureKeyVaultClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name] = newAzureSecret(name, value, nil, 1)
}

// AddError configures the mock to return an error for a specific secret
func (f *FakeAzureKeyVaultClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// CallCount returns how many times method was invoked.
func (f *FakeAzureKeyVaultClient) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

func newAzureSecret(name, value string, tags map[string]*string, version int) *AzureSecretData {
	now := time.Now()
	return &AzureSecretData{
		Value: to.Ptr(value),
		ID:    to.Ptr(fmt.Sprintf("https://test-vault.vault.azure.net/secrets/%s/v%d", name, version)),
		Attributes: &azsecrets.SecretAttributes{
			Enabled:       to.Ptr(true),
			Created:       &now,
			Updated:       &now,
			RecoveryLevel: to.Ptr("Recoverable+Purgeable"),
		},
		Tags:     tags,
		Versions: version,
	}
}

// GetSecret mocks the GetSecret operation
func (f *FakeAzureKeyVaultClient) GetSecret(_ context.Context, name string, _ string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["GetSecret"]++

	if err, exists := f.Errors[name]; exists {
		return azsecrets.GetSecretResponse{}, err
	}
	data, exists := f.Secrets[name]
	if !exists {
		return azsecrets.GetSecretResponse{}, AzureNotFoundError(name)
	}
	return azsecrets.GetSecretResponse{
		Secret: azsecrets.Secret{
			ID:         (*azsecrets.ID)(data.ID),
			Value:      data.Value,
			Attributes: data.Attributes,
			Tags:       data.Tags,
		},
	}, nil
}

// SetSecret mocks the SetSecret operation
func (f *FakeAzureKeyVaultClient) SetSecret(_ context.Context, name string, parameters azsecrets.SetSecretParameters, _ *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["SetSecret"]++

	if err, exists := f.Errors[name]; exists {
		return azsecrets.SetSecretResponse{}, err
	}
	if _, deleted := f.Deleted[name]; deleted {
		return azsecrets.SetSecretResponse{}, &azcore.ResponseError{
			StatusCode: http.StatusConflict,
			ErrorCode:  "ObjectIsDeletedButRecoverable",
		}
	}

	version := 1
	if existing, ok := f.Secrets[name]; ok {
		version = existing.Versions + 1
	}
	value := ""
	if parameters.Value != nil {
		value = *parameters.Value
	}
	data := newAzureSecret(name, value, parameters.Tags, version)
	f.Secrets[name] = data
	return azsecrets.SetSecretResponse{
		Secret: azsecrets.Secret{ID: (*azsecrets.ID)(data.ID), Attributes: data.Attributes, Tags: data.Tags},
	}, nil
}

// DeleteSecret mocks the DeleteSecret operation; the secret moves to the
// soft-deleted set.
func (f *FakeAzureKeyVaultClient) DeleteSecret(_ context.Context, name string, _ *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["DeleteSecret"]++

	if err, exists := f.Errors[name]; exists {
		return azsecrets.DeleteSecretResponse{}, err
	}
	data, exists := f.Secrets[name]
	if !exists {
		return azsecrets.DeleteSecretResponse{}, AzureNotFoundError(name)
	}
	delete(f.Secrets, name)
	f.Deleted[name] = data
	return azsecrets.DeleteSecretResponse{}, nil
}

// PurgeDeletedSecret mocks the PurgeDeletedSecret operation
func (f *FakeAzureKeyVaultClient) PurgeDeletedSecret(_ context.Context, name string, _ *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["PurgeDeletedSecret"]++

	if f.PurgeConflicts > 0 {
		f.PurgeConflicts--
		return azsecrets.PurgeDeletedSecretResponse{}, &azcore.ResponseError{
			StatusCode: http.StatusConflict,
			ErrorCode:  "Conflict",
		}
	}
	if _, exists := f.Deleted[name]; !exists {
		return azsecrets.PurgeDeletedSecretResponse{}, AzureNotFoundError(name)
	}
	delete(f.Deleted, name)
	return azsecrets.PurgeDeletedSecretResponse{}, nil
}

// AzureNotFoundError creates a mock Azure not found error
func AzureNotFoundError(secretName string) error {
	return &azcore.ResponseError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  "SecretNotFound",
	}
}

// AzureForbiddenError creates a mock Azure forbidden error
func AzureForbiddenError() error {
	return &azcore.ResponseError{
		StatusCode: http.StatusForbidden,
		ErrorCode:  "Forbidden",
	}
}

// AzureThrottledError creates a mock Azure throttled error
func AzureThrottledError() error {
	return &azcore.ResponseError{
		StatusCode: http.StatusTooManyRequests,
		ErrorCode:  "TooManyRequests",
	}
}
