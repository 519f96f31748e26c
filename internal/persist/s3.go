package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/systmms/securekv/pkg/securekv"
)

// S3API is the subset of the S3 client used by the S3 map.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3 keeps each entry as an object under a key prefix. Object names come
// from entryName, like Dir.
type S3 struct {
	client   S3API
	bucket   string
	prefix   string
	kmsKeyID string
}

// S3Config configures an S3 map.
type S3Config struct {
	Bucket   string
	Prefix   string // defaults to "securekv"
	KMSKeyID string // server side encryption with this KMS key when set
}

// NewS3 returns an S3 map using client.
func NewS3(client S3API, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "securekv"
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: prefix, kmsKeyID: cfg.KMSKeyID}, nil
}

// OpenS3 builds the client from awsCfg and checks that the bucket is
// reachable.
func OpenS3(ctx context.Context, awsCfg aws.Config, endpoint string, cfg S3Config) (*S3, error) {
	var clientOpts []func(*s3.Options)
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	m, err := NewS3(s3.NewFromConfig(awsCfg, clientOpts...), cfg)
	if err != nil {
		return nil, err
	}
	if _, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(m.bucket)}); err != nil {
		return nil, fmt.Errorf("failed to reach bucket %s: %w", m.bucket, err)
	}
	return m, nil
}

func (m *S3) objectKey(key string) string {
	return m.prefix + "/" + entryName(key) + entryExt
}

func (m *S3) SetItem(ctx context.Context, key, value string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(m.objectKey(key)),
		Body:        strings.NewReader(value),
		ContentType: aws.String("text/plain"),
	}
	if m.kmsKeyID != "" {
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(m.kmsKeyID)
	}
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (m *S3) GetItem(ctx context.Context, key string) (string, bool, error) {
	object, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Body.Close()

	data, err := io.ReadAll(object.Body)
	if err != nil {
		return "", false, fmt.Errorf("failed to read object: %w", err)
	}
	return string(data), true, nil
}

// RemoveItem deletes the object. S3 reports success for missing objects.
func (m *S3) RemoveItem(ctx context.Context, key string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.objectKey(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

var _ securekv.PersistentMap = (*S3)(nil)
