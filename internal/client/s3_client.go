package client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/enhancely/api/internal/config"
)

// LoadAWSConfig builds the shared AWS configuration used by the S3, DynamoDB
// and SQS clients. A custom endpoint (LocalStack, R2) and static credentials
// override the default chain when set.
func LoadAWSConfig(ctx context.Context, cfg *config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
			}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// S3Store stores images in an S3 bucket (or any S3 compatible endpoint)
type S3Store struct {
	s3Client   *s3.Client
	presigner  *s3.PresignClient
	bucketName string
	presignTTL time.Duration
	locators   locatorBase
}

// NewS3Store creates a new S3 storage client
func NewS3Store(awsCfg aws.Config, cfg *config.StorageConfig, endpoint string) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket not configured")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints rarely support virtual-hosted buckets
		o.UsePathStyle = endpoint != ""
	})

	base := cfg.PublicURL
	if base == "" {
		if endpoint != "" {
			base = fmt.Sprintf("%s/%s", endpoint, cfg.Bucket)
		} else {
			base = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
		}
	}

	return &S3Store{
		s3Client:   s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		bucketName: cfg.Bucket,
		presignTTL: cfg.PresignTTL,
		locators:   newLocatorBase(base),
	}, nil
}

// Put uploads an object and returns its locator
func (c *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	_, err := c.s3Client.PutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return c.locators.URL(key), nil
}

// Get downloads the object behind a locator
func (c *S3Store) Get(ctx context.Context, locator string) ([]byte, string, error) {
	key, err := c.locators.Key(locator)
	if err != nil {
		return nil, "", err
	}

	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read S3 object: %w", err)
	}
	return data, aws.ToString(out.ContentType), nil
}

// Resolve returns a URL a client can fetch: presigned when a TTL is
// configured, the public URL otherwise
func (c *S3Store) Resolve(ctx context.Context, locator string) (string, error) {
	key, err := c.locators.Key(locator)
	if err != nil {
		return "", err
	}
	if c.presignTTL <= 0 {
		return c.locators.URL(key), nil
	}

	presignedReq, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignedReq.URL, nil
}

// Name identifies the backend in health output
func (c *S3Store) Name() string {
	return config.BackendS3
}
