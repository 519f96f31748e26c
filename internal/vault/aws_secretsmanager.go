package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/systmms/securekv/pkg/securekv"
)

// SecretsManagerClientAPI defines the interface for AWS Secrets Manager operations
// This allows for mocking in tests
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWSSecretsManagerOption is a functional option for the Secrets Manager vault
type AWSSecretsManagerOption func(*AWSSecretsManager)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSSecretsManagerOption {
	return func(v *AWSSecretsManager) {
		v.client = client
	}
}

// AWSSecretsManager keeps each store entry as an AWS Secrets Manager secret.
type AWSSecretsManager struct {
	client   SecretsManagerClientAPI
	prefix   string
	kmsKeyID string
	probe    *probeCache
}

// AWSSecretsManagerConfig configures an AWSSecretsManager vault.
type AWSSecretsManagerConfig struct {
	AWS      AWSConfig
	Prefix   string // defaults to "securekv"
	KMSKeyID string // optional customer managed key for new secrets
	ProbeTTL time.Duration
}

// NewAWSSecretsManager creates a Secrets Manager vault.
func NewAWSSecretsManager(ctx context.Context, cfg AWSSecretsManagerConfig, opts ...AWSSecretsManagerOption) (*AWSSecretsManager, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "securekv"
	}
	v := &AWSSecretsManager{prefix: cfg.Prefix, kmsKeyID: cfg.KMSKeyID}
	for _, opt := range opts {
		opt(v)
	}

	if v.client == nil {
		awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*secretsmanager.Options)
		if endpoint := cfg.AWS.Endpoint; endpoint != "" {
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		v.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)
	}

	ttl := cfg.ProbeTTL
	if ttl == 0 {
		ttl = DefaultProbeTTL
	}
	v.probe = newProbeCache(ttl, v.probeOnce)
	return v, nil
}

func (v *AWSSecretsManager) probeOnce(ctx context.Context) error {
	_, err := v.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int32(1)})
	return err
}

// Validate probes the service and returns the failure, if any.
func (v *AWSSecretsManager) Validate(ctx context.Context) error {
	if err := v.probe.check(ctx); err != nil {
		return &Error{Vault: "aws-secretsmanager", Op: "probe", Name: v.prefix, Err: err}
	}
	return nil
}

func (v *AWSSecretsManager) IsAvailable(ctx context.Context) bool {
	return v.probe.check(ctx) == nil
}

func (v *AWSSecretsManager) SetItem(ctx context.Context, key, value string) error {
	name := itemName(v.prefix, key)
	_, err := v.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}
	if !isAWSNotFound(err) {
		return v.fail("set", name, err)
	}

	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
		Tags:         []types.Tag{{Key: aws.String("managed-by"), Value: aws.String("securekv")}},
	}
	if v.kmsKeyID != "" {
		input.KmsKeyId = aws.String(v.kmsKeyID)
	}
	if _, err := v.client.CreateSecret(ctx, input); err != nil {
		var exists *types.ResourceExistsException
		if !errors.As(err, &exists) {
			return v.fail("set", name, err)
		}
		// Lost a creation race; write the new value as a version.
		if _, err := v.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(name),
			SecretString: aws.String(value),
		}); err != nil {
			return v.fail("set", name, err)
		}
	}
	return nil
}

func (v *AWSSecretsManager) GetItem(ctx context.Context, key string) (string, bool, error) {
	name := itemName(v.prefix, key)
	result, err := v.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if isAWSNotFound(err) || isAWSMarkedForDeletion(err) {
			return "", false, nil
		}
		return "", false, v.fail("get", name, err)
	}
	if result.SecretString != nil {
		return *result.SecretString, true, nil
	}
	return string(result.SecretBinary), true, nil
}

func (v *AWSSecretsManager) DeleteItem(ctx context.Context, key string) error {
	name := itemName(v.prefix, key)
	_, err := v.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isAWSNotFound(err) {
		return v.fail("delete", name, err)
	}
	return nil
}

func (v *AWSSecretsManager) fail(op, name string, err error) error {
	if isAWSAuthError(err) {
		v.probe.invalidate()
		err = fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	return &Error{Vault: "aws-secretsmanager", Op: op, Name: name, Err: err}
}

func isAWSNotFound(err error) bool {
	var resourceNotFound *types.ResourceNotFoundException
	return errors.As(err, &resourceNotFound)
}

// isAWSMarkedForDeletion reports the InvalidRequestException Secrets Manager
// returns while a deleted secret is still within its recovery window.
func isAWSMarkedForDeletion(err error) bool {
	var invalid *types.InvalidRequestException
	return errors.As(err, &invalid) && strings.Contains(invalid.ErrorMessage(), "marked for deletion")
}

func isAWSAuthError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "AccessDenied") ||
		strings.Contains(errStr, "UnauthorizedOperation") ||
		strings.Contains(errStr, "InvalidUserID") ||
		strings.Contains(errStr, "ExpiredToken") ||
		strings.Contains(errStr, "Forbidden")
}

var _ securekv.Vault = (*AWSSecretsManager)(nil)
