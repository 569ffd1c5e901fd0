// Package storage compresses log segments and puts them into an object store.
// Works with any S3-compatible provider: AWS, Garage, Hetzner Object Storage,
// Contabo Object Storage, Cloudflare R2, MinIO, etc. A filesystem backend
// stands in for a bucket during local development.
package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/fabriziosalmi/rainroll/internal/config"
	"github.com/fabriziosalmi/rainroll/pkg/digest"
)

// DefaultRegion is used when the configuration leaves the region empty.
const DefaultRegion = "ap-southeast-1"

// S3Store wraps an S3 client. The client is built once and shared read-only
// by every upload.
type S3Store struct {
	client       *s3.Client
	storageClass string
	provider     string
}

// NewS3Store creates a store from config. Works with any S3-compatible
// endpoint. Uploads are attempted once: the SDK retryer is disabled.
func NewS3Store(cfg config.S3Config, provider string) *S3Store {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	opts := s3.Options{
		Region:           region,
		Credentials:      credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle:     cfg.ForcePathStyle,
		RetryMaxAttempts: 1,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &S3Store{
		client:       s3.New(opts),
		storageClass: cfg.StorageClass,
		provider:     provider,
	}
}

// CheckBucket verifies that the bucket is reachable with the configured
// credentials.
func (s *S3Store) CheckBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return fmt.Errorf("storage: head bucket %s: %w", bucket, err)
	}
	return nil
}

// Provider returns the human-readable provider label.
func (s *S3Store) Provider() string { return s.provider }

// PutObject uploads the file at path to bucket/key. The SHA-256 of the
// artifact is recorded in the object metadata.
func (s *S3Store) PutObject(ctx context.Context, bucket, key, path string) error {
	sum, size, err := digest.File(path)
	if err != nil {
		return fmt.Errorf("storage: hash artifact: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("storage: open artifact: %w", err)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/gzip"),
		Metadata:      map[string]string{"sha256": sum},
	}
	if s.storageClass != "" {
		in.StorageClass = types.StorageClass(s.storageClass)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("storage: put object: %w", err)
	}
	return nil
}
