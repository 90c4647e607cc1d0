// Object-store access for the table-format sink: a thin wrapper over the
// AWS SDK v2 S3 client, configured for an S3-compatible endpoint (MinIO or
// similar) per SPEC_FULL.md §1's "collaborator, wired concretely" stance.
// Grounded on initialize_object_store in sink_iceberg.rs (AmazonS3Builder
// with with_allow_http(true)), translated to the Go SDK's equivalent
// static-credentials + path-style + custom-endpoint configuration.
package icebergsink

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// objectStore is the narrow surface the sink needs; satisfied by *s3Client
// in production and by a fake in tests.
type objectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
}

// s3Client adapts *s3.Client to objectStore for one bucket.
type s3Client struct {
	client *s3.Client
	bucket string
}

// StoreOptions configure the S3-compatible object store connection.
type StoreOptions struct {
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
}

func newS3Store(ctx context.Context, opts StoreOptions) (*s3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "icebergsink: loading aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &s3Client{client: client, bucket: opts.Bucket}, nil
}

func (s *s3Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *s3Client) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}
