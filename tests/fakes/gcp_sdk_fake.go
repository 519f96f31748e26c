package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FakeGCPSecretManagerClient is an in-memory stand-in for the Secret
// Manager client. It satisfies vault.GCPSecretManagerAPI.
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex

	// Secrets maps full resource names (projects/X/secrets/Y) to their data
	Secrets map[string]*GCPSecretData
	// Errors maps resource names to errors to return
	Errors map[string]error
	// ProbeErr is returned by GetSecret for every name when set
	ProbeErr error
	// Calls counts invocations per method name
	Calls map[string]int
}

// GCPSecretData holds the data for a mock GCP secret
type GCPSecretData struct {
	Name       string
	CreateTime *timestamppb.Timestamp
	Labels     map[string]string
	// Versions holds payloads in creation order; the last is "latest"
	Versions [][]byte
}

// NewFakeGCPSecretManagerClient creates a new mock GCP Secret Manager client
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Secrets: make(map[string]*GCPSecretData),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecretString adds a secret with a single version to the mock client
func (f *FakeGCPSecretManagerClient) AddSecretString(projectID, secretID, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := fmt.Sprintf("projects/%s/secrets/%s", projectID, secretID)
	f.Secrets[name] = &GCPSecretData{
		Name:       name,
		CreateTime: timestamppb.New(time.Now()),
		Labels:     map[string]string{},
		Versions:   [][]byte{[]byte(value)},
	}
}

// AddError configures the mock to return an error for a specific resource
func (f *FakeGCPSecretManagerClient) AddError(resourceName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[resourceName] = err
}

// CallCount returns how many times method was invoked.
func (f *FakeGCPSecretManagerClient) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

// AccessSecretVersion mocks the AccessSecretVersion operation
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["AccessSecretVersion"]++

	secretName, version, ok := strings.Cut(req.GetName(), "/versions/")
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "malformed version name %s", req.GetName())
	}
	if err, exists := f.Errors[secretName]; exists {
		return nil, err
	}

	secret, exists := f.Secrets[secretName]
	if !exists || len(secret.Versions) == 0 {
		return nil, status.Errorf(codes.NotFound, "Secret version %s not found", req.GetName())
	}

	idx := len(secret.Versions)
	if version != "latest" {
		if _, err := fmt.Sscanf(version, "%d", &idx); err != nil || idx < 1 || idx > len(secret.Versions) {
			return nil, status.Errorf(codes.NotFound, "Secret version %s not found", req.GetName())
		}
	}

	return &secretmanagerpb.AccessSecretVersionResponse{
		Name: fmt.Sprintf("%s/versions/%d", secretName, idx),
		Payload: &secretmanagerpb.SecretPayload{
			Data: append([]byte(nil), secret.Versions[idx-1]...),
		},
	}, nil
}

// GetSecret mocks the GetSecret operation
func (f *FakeGCPSecretManagerClient) GetSecret(_ context.Context, req *secretmanagerpb.GetSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["GetSecret"]++

	if f.ProbeErr != nil {
		return nil, f.ProbeErr
	}
	if err, exists := f.Errors[req.GetName()]; exists {
		return nil, err
	}
	secret, exists := f.Secrets[req.GetName()]
	if !exists {
		return nil, status.Errorf(codes.NotFound, "Secret %s not found", req.GetName())
	}
	return &secretmanagerpb.Secret{
		Name:       secret.Name,
		CreateTime: secret.CreateTime,
		Labels:     secret.Labels,
	}, nil
}

// CreateSecret mocks the CreateSecret operation
func (f *FakeGCPSecretManagerClient) CreateSecret(_ context.Context, req *secretmanagerpb.CreateSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["CreateSecret"]++

	name := req.GetParent() + "/secrets/" + req.GetSecretId()
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if _, exists := f.Secrets[name]; exists {
		return nil, status.Errorf(codes.AlreadyExists, "Secret %s already exists", name)
	}
	if req.GetSecret().GetReplication() == nil {
		return nil, status.Error(codes.InvalidArgument, "replication is required")
	}

	labels := map[string]string{}
	for k, v := range req.GetSecret().GetLabels() {
		labels[k] = v
	}
	data := &GCPSecretData{
		Name:       name,
		CreateTime: timestamppb.New(time.Now()),
		Labels:     labels,
	}
	f.Secrets[name] = data
	return &secretmanagerpb.Secret{Name: name, CreateTime: data.CreateTime, Labels: labels}, nil
}

// AddSecretVersion mocks the AddSecretVersion operation
func (f *FakeGCPSecretManagerClient) AddSecretVersion(_ context.Context, req *secretmanagerpb.AddSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["AddSecretVersion"]++

	if err, exists := f.Errors[req.GetParent()]; exists {
		return nil, err
	}
	secret, exists := f.Secrets[req.GetParent()]
	if !exists {
		return nil, status.Errorf(codes.NotFound, "Secret %s not found", req.GetParent())
	}

	secret.Versions = append(secret.Versions, append([]byte(nil), req.GetPayload().GetData()...))
	return &secretmanagerpb.SecretVersion{
		Name:       fmt.Sprintf("%s/versions/%d", req.GetParent(), len(secret.Versions)),
		CreateTime: timestamppb.New(time.Now()),
		State:      secretmanagerpb.SecretVersion_ENABLED,
	}, nil
}

// DeleteSecret mocks the DeleteSecret operation
func (f *FakeGCPSecretManagerClient) DeleteSecret(_ context.Context, req *secretmanagerpb.DeleteSecretRequest, _ ...gax.CallOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["DeleteSecret"]++

	if err, exists := f.Errors[req.GetName()]; exists {
		return err
	}
	if _, exists := f.Secrets[req.GetName()]; !exists {
		return status.Errorf(codes.NotFound, "Secret %s not found", req.GetName())
	}
	delete(f.Secrets, req.GetName())
	return nil
}

// GCP error helpers

// GCPNotFoundError creates a mock GCP not found error
func GCPNotFoundError(resourceName string) error {
	return status.Errorf(codes.NotFound, "Resource %s not found", resourceName)
}

// GCPPermissionDeniedError creates a mock GCP permission denied error
func GCPPermissionDeniedError(message string) error {
	return status.Error(codes.PermissionDenied, message)
}

// GCPUnauthenticatedError creates a mock GCP unauthenticated error
func GCPUnauthenticatedError(message string) error {
	return status.Error(codes.Unauthenticated, message)
}

// GCPUnavailableError creates a mock GCP transport failure
func GCPUnavailableError() error {
	return status.Error(codes.Unavailable, "connection refused")
}
