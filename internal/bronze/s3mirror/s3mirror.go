// Package s3mirror replicates bronze artifacts to an S3-compatible bucket
// (AWS S3 or MinIO).
package s3mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the subset of the S3 client used by Mirror.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds construction parameters. Credentials fall back to the
// default AWS chain when AccessKeyID is empty.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

type Mirror struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// New builds a Mirror backed by the AWS SDK.
func New(ctx context.Context, cfg Config) (*Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(client PutObjectAPI, bucket, prefix string) *Mirror {
	return &Mirror{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Put uploads the file at localPath under key.
func (m *Mirror) Put(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	objectKey := key
	if m.prefix != "" {
		objectKey = path.Join(m.prefix, key)
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(objectKey),
		Body:   f,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := m.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.bucket, objectKey, err)
	}
	return nil
}
