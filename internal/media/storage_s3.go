/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config holds the settings for an S3-compatible storage backend.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	PublicBaseURL   string // Optional CDN base; presigned URLs are used when empty
	UsePathStyle    bool   // Required for MinIO
}

// presignTTL bounds how long a playback URL stays valid. Long enough for a
// full pass over a large rotation.
const presignTTL = 6 * time.Hour

// S3Storage implements Storage on S3-compatible object storage.
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     S3Config
	logger  zerolog.Logger
}

// NewS3Storage creates an S3-based storage backend. When no static
// credentials are configured the ambient AWS credential chain applies.
func NewS3Storage(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Store uploads the file under the given key.
func (st *S3Storage) Store(ctx context.Context, key, contentType string, file io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(st.cfg.Bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := st.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	st.logger.Debug().Str("bucket", st.cfg.Bucket).Str("key", key).Msg("s3 storage: object stored")
	return nil
}

// Delete removes an object. S3 deletes are idempotent, so missing keys succeed.
func (st *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := st.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(st.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	st.logger.Debug().Str("bucket", st.cfg.Bucket).Str("key", key).Msg("s3 storage: object deleted")
	return nil
}

// PlaybackRef returns a URL ffmpeg can read the object from: a public URL
// when a CDN base is configured, otherwise a presigned GET.
func (st *S3Storage) PlaybackRef(ctx context.Context, key string) (string, error) {
	if st.cfg.PublicBaseURL != "" {
		return strings.TrimRight(st.cfg.PublicBaseURL, "/") + "/" + key, nil
	}

	req, err := st.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(st.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return req.URL, nil
}

// CheckAccess verifies the bucket answers.
func (st *S3Storage) CheckAccess(ctx context.Context) error {
	if _, err := st.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(st.cfg.Bucket),
	}); err != nil {
		return fmt.Errorf("head bucket %s: %w", st.cfg.Bucket, err)
	}
	return nil
}
