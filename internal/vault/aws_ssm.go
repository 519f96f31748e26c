package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/systmms/securekv/pkg/securekv"
)

// SSMClientAPI defines the interface for AWS SSM Parameter Store operations
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
}

// AWSParameterStoreOption is a functional option for the Parameter Store vault
type AWSParameterStoreOption func(*AWSParameterStore)

// WithSSMClient sets a custom SSM client (for testing)
func WithSSMClient(client SSMClientAPI) AWSParameterStoreOption {
	return func(v *AWSParameterStore) {
		v.client = client
	}
}

// AWSParameterStoreConfig configures an AWSParameterStore vault.
type AWSParameterStoreConfig struct {
	AWS      AWSConfig
	Path     string // parameter path prefix, defaults to "/securekv"
	KMSKeyID string
	ProbeTTL time.Duration
}

// AWSParameterStore keeps each entry as an SSM SecureString parameter.
type AWSParameterStore struct {
	client   SSMClientAPI
	path     string
	kmsKeyID string
	probe    *probeCache
}

// NewAWSParameterStore creates a Parameter Store vault.
func NewAWSParameterStore(ctx context.Context, cfg AWSParameterStoreConfig, opts ...AWSParameterStoreOption) (*AWSParameterStore, error) {
	if cfg.Path == "" {
		cfg.Path = "/securekv"
	}
	v := &AWSParameterStore{path: cfg.Path, kmsKeyID: cfg.KMSKeyID}
	for _, opt := range opts {
		opt(v)
	}

	if v.client == nil {
		awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*ssm.Options)
		if endpoint := cfg.AWS.Endpoint; endpoint != "" {
			clientOpts = append(clientOpts, func(o *ssm.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		v.client = ssm.NewFromConfig(awsCfg, clientOpts...)
	}

	ttl := cfg.ProbeTTL
	if ttl == 0 {
		ttl = DefaultProbeTTL
	}
	v.probe = newProbeCache(ttl, v.probeOnce)
	return v, nil
}

func (v *AWSParameterStore) probeOnce(ctx context.Context) error {
	_, err := v.client.DescribeParameters(ctx, &ssm.DescribeParametersInput{MaxResults: aws.Int32(1)})
	return err
}

// Validate probes the service and returns the failure, if any.
func (v *AWSParameterStore) Validate(ctx context.Context) error {
	if err := v.probe.check(ctx); err != nil {
		return &Error{Vault: "aws-ssm", Op: "probe", Name: v.path, Err: err}
	}
	return nil
}

func (v *AWSParameterStore) IsAvailable(ctx context.Context) bool {
	return v.probe.check(ctx) == nil
}

func (v *AWSParameterStore) SetItem(ctx context.Context, key, value string) error {
	name := parameterName(v.path, key)
	input := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if v.kmsKeyID != "" {
		input.KeyId = aws.String(v.kmsKeyID)
	}
	if _, err := v.client.PutParameter(ctx, input); err != nil {
		return v.fail("set", name, err)
	}
	return nil
}

func (v *AWSParameterStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	name := parameterName(v.path, key)
	result, err := v.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isParameterNotFound(err) {
			return "", false, nil
		}
		return "", false, v.fail("get", name, err)
	}
	if result.Parameter == nil {
		return "", false, nil
	}
	return aws.ToString(result.Parameter.Value), true, nil
}

func (v *AWSParameterStore) DeleteItem(ctx context.Context, key string) error {
	name := parameterName(v.path, key)
	_, err := v.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{Name: aws.String(name)})
	if err != nil && !isParameterNotFound(err) {
		return v.fail("delete", name, err)
	}
	return nil
}

func (v *AWSParameterStore) fail(op, name string, err error) error {
	if isAWSAuthError(err) {
		v.probe.invalidate()
		err = fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	return &Error{Vault: "aws-ssm", Op: op, Name: name, Err: err}
}

func isParameterNotFound(err error) bool {
	var notFound *ssmtypes.ParameterNotFound
	return errors.As(err, &notFound)
}

var _ securekv.Vault = (*AWSParameterStore)(nil)
