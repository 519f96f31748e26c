package fakes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
)

// FakeSecretsManagerClient is an in-memory Secrets Manager. It satisfies
// vault.SecretsManagerClientAPI.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their data
	Secrets map[string]*SecretData
	// Errors maps secret names to errors to return
	Errors map[string]error
	// ListErr is returned by ListSecrets when set
	ListErr error
	// CreateRaceOnce makes the next CreateSecret report that the secret
	// already exists, as if another writer won the race.
	CreateRaceOnce bool
}

// SecretData holds the data for a mock secret
type SecretData struct {
	SecretString *string
	SecretBinary []byte
	VersionId    *string
	KmsKeyId     *string
	Tags         []types.Tag
	CreatedDate  *time.Time
	versions     int
}

// NewFakeSecretsManagerClient creates a new mock Secrets Manager client
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]*SecretData),
		Errors:  make(map[string]error),
	}
}

// AddSecretString adds a string secret to the mock client
func (f *FakeSecretsManagerClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.Secrets[name] = &SecretData{
		SecretString: aws.String(value),
		VersionId:    aws.String("v1"),
		CreatedDate:  &now,
		versions:     1,
	}
}

// AddError configures the mock to return an error for a specific secret
func (f *FakeSecretsManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

func notFound(name string) error {
	return &types.ResourceNotFoundException{
		Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
	}
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	data, exists := f.Secrets[name]
	if !exists {
		return nil, notFound(name)
	}
	return &secretsmanager.GetSecretValueOutput{
		ARN:          aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", name)),
		Name:         params.SecretId,
		SecretString: data.SecretString,
		SecretBinary: data.SecretBinary,
		VersionId:    data.VersionId,
		CreatedDate:  data.CreatedDate,
	}, nil
}

// PutSecretValue mocks the PutSecretValue operation
func (f *FakeSecretsManagerClient) PutSecretValue(_ context.Context, params *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	data, exists := f.Secrets[name]
	if !exists {
		return nil, notFound(name)
	}
	data.versions++
	data.SecretString = params.SecretString
	data.SecretBinary = params.SecretBinary
	data.VersionId = aws.String(fmt.Sprintf("v%d", data.versions))
	return &secretsmanager.PutSecretValueOutput{Name: params.SecretId, VersionId: data.VersionId}, nil
}

// CreateSecret mocks the CreateSecret operation
func (f *FakeSecretsManagerClient) CreateSecret(_ context.Context, params *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if f.CreateRaceOnce {
		f.CreateRaceOnce = false
		now := time.Now()
		f.Secrets[name] = &SecretData{SecretString: aws.String("racer"), VersionId: aws.String("v1"), CreatedDate: &now, versions: 1}
		return nil, &types.ResourceExistsException{Message: aws.String("secret already exists")}
	}
	if _, exists := f.Secrets[name]; exists {
		return nil, &types.ResourceExistsException{Message: aws.String("secret already exists")}
	}
	now := time.Now()
	f.Secrets[name] = &SecretData{
		SecretString: params.SecretString,
		SecretBinary: params.SecretBinary,
		VersionId:    aws.String("v1"),
		KmsKeyId:     params.KmsKeyId,
		Tags:         params.Tags,
		CreatedDate:  &now,
		versions:     1,
	}
	return &secretsmanager.CreateSecretOutput{Name: params.Name, VersionId: aws.String("v1")}, nil
}

// DeleteSecret mocks the DeleteSecret operation. Only force deletion is
// modelled; a recovery window would leave the secret readable.
func (f *FakeSecretsManagerClient) DeleteSecret(_ context.Context, params *secretsmanager.DeleteSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if _, exists := f.Secrets[name]; !exists {
		return nil, notFound(name)
	}
	if !aws.ToBool(params.ForceDeleteWithoutRecovery) {
		return nil, &types.InvalidParameterException{Message: aws.String("fake only supports ForceDeleteWithoutRecovery")}
	}
	delete(f.Secrets, name)
	return &secretsmanager.DeleteSecretOutput{Name: params.SecretId}, nil
}

// ListSecrets mocks the ListSecrets operation
func (f *FakeSecretsManagerClient) ListSecrets(_ context.Context, params *secretsmanager.ListSecretsInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var list []types.SecretListEntry
	for name := range f.Secrets {
		if params.MaxResults != nil && int32(len(list)) >= *params.MaxResults {
			break
		}
		list = append(list, types.SecretListEntry{Name: aws.String(name)})
	}
	return &secretsmanager.ListSecretsOutput{SecretList: list}, nil
}

// FakeSSMClient is an in-memory Parameter Store. It satisfies
// vault.SSMClientAPI.
type FakeSSMClient struct {
	mu sync.Mutex

	// Parameters maps parameter names to their data
	Parameters map[string]*ParameterData
	// Errors maps parameter names to errors to return
	Errors map[string]error
	// DescribeErr is returned by DescribeParameters when set
	DescribeErr error
}

// ParameterData holds the data for a mock parameter
type ParameterData struct {
	Name    *string
	Type    ssmtypes.ParameterType
	Value   *string
	KeyId   *string
	Version int64
}

// NewFakeSSMClient creates a new mock SSM client
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]*ParameterData),
		Errors:     make(map[string]error),
	}
}

// AddSecureStringParameter adds a SecureString parameter
func (f *FakeSSMClient) AddSecureStringParameter(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Parameters[name] = &ParameterData{
		Name:    aws.String(name),
		Type:    ssmtypes.ParameterTypeSecureString,
		Value:   aws.String(value),
		Version: 1,
	}
}

// AddError configures the mock to return an error for a specific parameter
func (f *FakeSSMClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// GetParameter mocks the GetParameter operation. SecureString values are
// only returned with WithDecryption, as the real service does.
func (f *FakeSSMClient) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	data, exists := f.Parameters[name]
	if !exists {
		return nil, &ssmtypes.ParameterNotFound{
			Message: aws.String(fmt.Sprintf("Parameter %s not found", name)),
		}
	}

	value := data.Value
	if data.Type == ssmtypes.ParameterTypeSecureString && !aws.ToBool(params.WithDecryption) {
		value = aws.String("AQICAHh-encrypted-blob")
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:    data.Name,
			Type:    data.Type,
			Value:   value,
			Version: data.Version,
		},
	}, nil
}

// PutParameter mocks the PutParameter operation
func (f *FakeSSMClient) PutParameter(_ context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	data, exists := f.Parameters[name]
	if exists && !aws.ToBool(params.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String("parameter already exists")}
	}
	if !exists {
		data = &ParameterData{Name: aws.String(name)}
		f.Parameters[name] = data
	}
	data.Type = params.Type
	data.Value = params.Value
	data.KeyId = params.KeyId
	data.Version++
	return &ssm.PutParameterOutput{Version: data.Version}, nil
}

// DeleteParameter mocks the DeleteParameter operation
func (f *FakeSSMClient) DeleteParameter(_ context.Context, params *ssm.DeleteParameterInput, _ ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if _, exists := f.Parameters[name]; !exists {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String(fmt.Sprintf("Parameter %s not found", name))}
	}
	delete(f.Parameters, name)
	return &ssm.DeleteParameterOutput{}, nil
}

// DescribeParameters mocks the DescribeParameters operation
func (f *FakeSSMClient) DescribeParameters(_ context.Context, _ *ssm.DescribeParametersInput, _ ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DescribeErr != nil {
		return nil, f.DescribeErr
	}
	var list []ssmtypes.ParameterMetadata
	for _, data := range f.Parameters {
		list = append(list, ssmtypes.ParameterMetadata{Name: data.Name, Type: data.Type, Version: data.Version})
	}
	return &ssm.DescribeParametersOutput{Parameters: list}, nil
}

// AWSAccessDeniedError creates a generic AWS access denied API error
func AWSAccessDeniedError() error {
	return &smithy.GenericAPIError{
		Code:    "AccessDeniedException",
		Message: "User is not authorized to perform this operation",
	}
}

// FakeS3Client is an in-memory S3 bucket set. It satisfies persist.S3API.
type FakeS3Client struct {
	mu sync.Mutex

	// Objects maps bucket/key to the object body
	Objects map[string][]byte
	// SSEKeys maps bucket/key to the KMS key the object was put with
	SSEKeys map[string]string
	// Buckets lists the buckets HeadBucket accepts
	Buckets map[string]bool
	// Err is returned by every call when set
	Err error
}

// NewFakeS3Client creates a fake with the given buckets.
func NewFakeS3Client(buckets ...string) *FakeS3Client {
	f := &FakeS3Client{
		Objects: make(map[string][]byte),
		SSEKeys: make(map[string]string),
		Buckets: make(map[string]bool),
	}
	for _, b := range buckets {
		f.Buckets[b] = true
	}
	return f
}

func s3Path(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

// GetObject mocks the GetObject operation
func (f *FakeS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if !f.Buckets[aws.ToString(params.Bucket)] {
		return nil, &s3types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	body, ok := f.Objects[s3Path(params.Bucket, params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

// PutObject mocks the PutObject operation
func (f *FakeS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if !f.Buckets[aws.ToString(params.Bucket)] {
		return nil, &s3types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	path := s3Path(params.Bucket, params.Key)
	f.Objects[path] = body
	if params.ServerSideEncryption == s3types.ServerSideEncryptionAwsKms {
		f.SSEKeys[path] = aws.ToString(params.SSEKMSKeyId)
	} else {
		delete(f.SSEKeys, path)
	}
	return &s3.PutObjectOutput{}, nil
}

// DeleteObject mocks the DeleteObject operation. Missing keys succeed, as
// they do on S3.
func (f *FakeS3Client) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	path := s3Path(params.Bucket, params.Key)
	delete(f.Objects, path)
	delete(f.SSEKeys, path)
	return &s3.DeleteObjectOutput{}, nil
}

// HeadBucket mocks the HeadBucket operation
func (f *FakeS3Client) HeadBucket(_ context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if !f.Buckets[aws.ToString(params.Bucket)] {
		return nil, &s3types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadBucketOutput{}, nil
}

// Len returns the number of stored objects.
func (f *FakeS3Client) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Objects)
}
