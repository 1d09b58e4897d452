// Package s3 archives scan artifacts in an S3 (or S3-compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/observability/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// API is the subset of the S3 client used by Client.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Client implements ports.Storage for S3.
type Client struct {
	api     API
	bucket  string
	region  string
	logger  types.Logger
	metrics types.Metrics
}

// New creates an S3 client for cfg.BucketOrPath, creating the bucket when it
// does not exist yet.
func New(ctx context.Context, cfg *config.StorageConfig, logger types.Logger, metrics types.Metrics) (*Client, error) {
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
	})

	c := NewWithClient(api, cfg.BucketOrPath, cfg.S3.Region, logger, metrics)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.ensureBucketExists(checkCtx); err != nil {
		logger.Error(ctx, "Failed to verify bucket existence", err, types.Fields{"bucket": cfg.BucketOrPath})
		return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
	}

	logger.Info(ctx, "S3 client initialized", types.Fields{"bucket": cfg.BucketOrPath, "region": cfg.S3.Region})
	return c, nil
}

// NewWithClient wraps an existing S3 API. Empty bucket arguments passed to
// the storage methods fall back to bucket.
func NewWithClient(api API, bucket, region string, logger types.Logger, metrics types.Metrics) *Client {
	return &Client{
		api:     api,
		bucket:  bucket,
		region:  region,
		logger:  logger,
		metrics: metrics,
	}
}

// Put stores an object in S3.
func (c *Client) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	start := time.Now()
	bucket = c.bucketOrDefault(bucket)

	buf := &bytes.Buffer{}
	size, err := io.Copy(buf, reader)
	if err != nil {
		c.metrics.RecordError("storage_put", "read")
		return fmt.Errorf("failed to read content: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
	}
	if metadata.ContentType != "" {
		input.ContentType = aws.String(metadata.ContentType)
	}
	if len(metadata.UserMetadata) > 0 {
		input.Metadata = metadata.UserMetadata
	}

	if _, err := c.api.PutObject(ctx, input); err != nil {
		c.logger.Error(ctx, "Failed to put object", err, types.Fields{"bucket": bucket, "key": key})
		c.metrics.RecordError("storage_put", "s3_error")
		return fmt.Errorf("failed to put object: %w", err)
	}

	c.logger.Debug(ctx, "Object stored", types.Fields{
		"bucket":      bucket,
		"key":         key,
		"size_bytes":  size,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	c.metrics.RecordSuccess("storage_put")
	c.metrics.RecordDuration("storage_put", time.Since(start).Seconds())

	return nil
}

// Get retrieves an object. Missing keys return ports.ErrObjectNotFound.
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	bucket = c.bucketOrDefault(bucket)

	result, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			c.metrics.RecordError("storage_get", "not_found")
			return nil, fmt.Errorf("%w: %s/%s", ports.ErrObjectNotFound, bucket, key)
		}
		c.logger.Error(ctx, "Failed to get object", err, types.Fields{"bucket": bucket, "key": key})
		c.metrics.RecordError("storage_get", "s3_error")
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	c.metrics.RecordSuccess("storage_get")
	return result.Body, nil
}

// Exists checks if an object exists.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	bucket = c.bucketOrDefault(bucket)

	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		c.logger.Error(ctx, "Failed to check object existence", err, types.Fields{"bucket": bucket, "key": key})
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// Delete removes an object.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	bucket = c.bucketOrDefault(bucket)

	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.logger.Error(ctx, "Failed to delete object", err, types.Fields{"bucket": bucket, "key": key})
		c.metrics.RecordError("storage_delete", "s3_error")
		return fmt.Errorf("failed to delete object: %w", err)
	}

	c.metrics.RecordSuccess("storage_delete")
	return nil
}

func (c *Client) bucketOrDefault(bucket string) string {
	if bucket == "" {
		return c.bucket
	}
	return bucket
}

func (c *Client) ensureBucketExists(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}

	var nf *s3types.NotFound
	if !errors.As(err, &nf) {
		return err
	}

	c.logger.Info(ctx, "Bucket does not exist, creating it", types.Fields{"bucket": c.bucket})

	input := &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}
	// us-east-1 rejects an explicit location constraint.
	if c.region != "" && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(c.region),
		}
	}

	if _, err := c.api.CreateBucket(ctx, input); err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func buildAWSConfig(ctx context.Context, cfg *config.StorageConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.S3.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.S3.Region))
	}

	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	if cfg.Timeout > 0 {
		optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

func isNotFoundError(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
