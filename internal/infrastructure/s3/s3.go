// Package s3 stores media blobs in an S3 bucket or an S3-compatible service.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
)

type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // optional static credentials
	SecretAccessKey string
	Endpoint        string // custom endpoint for S3-compatible services
	UsePathStyle    bool
	// PublicBaseURL prefixes object keys to build the public URL. Defaults to
	// the virtual-hosted bucket URL.
	PublicBaseURL string
	// KeyPrefix groups uploaded objects under one folder.
	KeyPrefix string
}

type BlobStore struct {
	client  *s3.Client
	bucket  string
	baseURL string
	prefix  string
}

func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &BlobStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: publicBaseURL(cfg),
		prefix:  strings.Trim(cfg.KeyPrefix, "/"),
	}, nil
}

func publicBaseURL(cfg Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// Put uploads body under a fresh key derived from name and returns the key as
// the external id.
func (b *BlobStore) Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (media.Blob, error) {
	key := b.objectKey(name)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return media.Blob{}, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return media.Blob{ExternalID: key, URL: b.baseURL + "/" + (&url.URL{Path: key}).EscapedPath()}, nil
}

// Delete removes the object. A missing object counts as deleted.
func (b *BlobStore) Delete(ctx context.Context, externalID string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(externalID),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func (b *BlobStore) objectKey(name string) string {
	key := uuid.New().String()
	if ext := path.Ext(name); ext != "" && len(ext) <= 10 {
		key += strings.ToLower(ext)
	}
	if b.prefix != "" {
		key = b.prefix + "/" + key
	}
	return key
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
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

var _ media.BlobStore = (*BlobStore)(nil)
