package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/securekv/pkg/securekv"
)

// GCPSecretManagerAPI is the subset of the Secret Manager client the vault
// uses. *secretmanager.Client satisfies it.
type GCPSecretManagerAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
}

// GCPConfig holds GCP Secret Manager-specific configuration
type GCPConfig struct {
	ProjectID             string
	Prefix                string // secret name prefix, defaults to "securekv"
	ServiceAccountKeyPath string
	ImpersonateAccount    string
	Endpoint              string
	Labels                map[string]string
	ProbeTTL              time.Duration
}

// GCPOption is a functional option for configuring the GCP vault
type GCPOption func(*GCPSecretManager)

// WithGCPClient sets a custom Secret Manager client (for testing)
func WithGCPClient(client GCPSecretManagerAPI) GCPOption {
	return func(v *GCPSecretManager) {
		v.client = client
	}
}

// GCPSecretManager keeps each store entry as a Secret Manager secret whose
// latest version holds the payload.
type GCPSecretManager struct {
	client    GCPSecretManagerAPI
	projectID string
	prefix    string
	labels    map[string]string
	probe     *probeCache
}

// NewGCPSecretManager creates a GCP Secret Manager vault. Without
// WithGCPClient a real client is dialled using application default
// credentials, a key file or impersonation.
func NewGCPSecretManager(ctx context.Context, cfg GCPConfig, opts ...GCPOption) (*GCPSecretManager, error) {
	if cfg.ProjectID == "" {
		cfg.ProjectID = gcpProjectIDFromEnv()
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("project_id is required for GCP Secret Manager")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "securekv"
	}

	v := &GCPSecretManager{
		projectID: cfg.ProjectID,
		prefix:    cfg.Prefix,
		labels:    cfg.Labels,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.client == nil {
		client, err := newGCPClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
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

func newGCPClient(ctx context.Context, cfg GCPConfig) (*secretmanager.Client, error) {
	var clientOptions []option.ClientOption

	if cfg.ServiceAccountKeyPath != "" {
		path := cfg.ServiceAccountKeyPath
		if strings.HasPrefix(path, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			path = filepath.Join(home, path[2:])
		}
		clientOptions = append(clientOptions, option.WithCredentialsFile(path))
	}

	if cfg.ImpersonateAccount != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: cfg.ImpersonateAccount,
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create impersonated credentials: %w", err)
		}
		clientOptions = append(clientOptions, option.WithTokenSource(ts))
	}

	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(cfg.Endpoint))
	}

	return secretmanager.NewClient(ctx, clientOptions...)
}

// gcpProjectIDFromEnv looks up the project the way the gcloud tooling does.
func gcpProjectIDFromEnv() string {
	for _, name := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"} {
		if projectID := os.Getenv(name); projectID != "" {
			return projectID
		}
	}
	return ""
}

func (v *GCPSecretManager) secretName(key string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", v.projectID, itemName(v.prefix, key))
}

// probeOnce reads a secret that normally does not exist. NotFound proves the
// credentials and network path work.
func (v *GCPSecretManager) probeOnce(ctx context.Context) error {
	_, err := v.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s-probe", v.projectID, v.prefix),
	})
	if err == nil || status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// Validate probes the service and returns the failure, if any.
func (v *GCPSecretManager) Validate(ctx context.Context) error {
	if err := v.probe.check(ctx); err != nil {
		return &Error{Vault: "gcp-secretmanager", Op: "probe", Name: v.projectID, Err: err}
	}
	return nil
}

func (v *GCPSecretManager) IsAvailable(ctx context.Context) bool {
	return v.probe.check(ctx) == nil
}

func (v *GCPSecretManager) SetItem(ctx context.Context, key, value string) error {
	name := v.secretName(key)
	req := &secretmanagerpb.AddSecretVersionRequest{
		Parent:  name,
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}

	_, err := v.client.AddSecretVersion(ctx, req)
	if status.Code(err) == codes.NotFound {
		if err := v.createSecret(ctx, key); err != nil {
			return v.fail("set", name, err)
		}
		_, err = v.client.AddSecretVersion(ctx, req)
	}
	if err != nil {
		return v.fail("set", name, err)
	}
	return nil
}

func (v *GCPSecretManager) createSecret(ctx context.Context, key string) error {
	labels := map[string]string{"managed-by": "securekv"}
	for k, val := range v.labels {
		labels[k] = val
	}
	_, err := v.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + v.projectID,
		SecretId: itemName(v.prefix, key),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
			Labels: labels,
		},
	})
	// A concurrent writer may have created it first.
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

func (v *GCPSecretManager) GetItem(ctx context.Context, key string) (string, bool, error) {
	name := v.secretName(key)
	result, err := v.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, v.fail("get", name, err)
	}
	if result.GetPayload() == nil {
		return "", false, v.fail("get", name, errors.New("secret has no payload"))
	}
	return string(result.GetPayload().GetData()), true, nil
}

func (v *GCPSecretManager) DeleteItem(ctx context.Context, key string) error {
	name := v.secretName(key)
	err := v.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: name})
	if err != nil && status.Code(err) != codes.NotFound {
		return v.fail("delete", name, err)
	}
	return nil
}

func (v *GCPSecretManager) fail(op, name string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Unauthenticated:
		v.probe.invalidate()
	case codes.PermissionDenied:
		err = fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	return &Error{Vault: "gcp-secretmanager", Op: op, Name: name, Err: err}
}

// Close closes the underlying client if it owns a connection.
func (v *GCPSecretManager) Close() error {
	if c, ok := v.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ securekv.Vault = (*GCPSecretManager)(nil)
