// Package storage uploads reports to S3 compatible object storage.
package storage

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultRegion is used when no region is configured. Most S3 compatible
// services ignore it, but request signing needs one.
const DefaultRegion = "us-east-1"

// Error is a storage error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// ErrNoBucket is returned when no bucket is configured.
const ErrNoBucket Error = "no bucket configured"

// Config configures the S3 uploader.
type Config struct {
	Bucket    string
	Endpoint  string // empty uses AWS
	AccessKey string // empty uses the default credential chain
	SecretKey string
	Region    string
}

// Uploader puts objects into a single bucket.
type Uploader struct {
	client *s3.Client
	bucket string
}

// NewUploader creates an Uploader from cfg.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			}, nil
		})))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Bucket returns the bucket objects are uploaded to.
func (u *Uploader) Bucket() string {
	return u.bucket
}

// Upload puts buf at key.
func (u *Uploader) Upload(ctx context.Context, key string, buf []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String(contentType),
	})
	return err
}
