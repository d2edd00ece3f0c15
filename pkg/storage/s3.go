package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Config describes the bucket backing applicant uploads.
type S3Config struct {
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PresignTTL time.Duration
}

// S3Store keeps uploads in an S3 (or S3 compatible) bucket.
type S3Store struct {
	client     s3iface.S3API
	bucket     string
	region     string
	endpoint   string
	presignTTL time.Duration
}

// NewS3Store opens an AWS session using static credentials.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("s3 bucket and region are required")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3StoreWithClient(s3.New(sess), cfg), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client s3iface.S3API, cfg S3Config) *S3Store {
	return &S3Store{
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		presignTTL: cfg.PresignTTL,
	}
}

// Put uploads the object and returns its key.
func (s *S3Store) Put(ctx context.Context, obj Object) (string, error) {
	key := NewFileID(obj.Folder, obj.ContentType)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(obj.Data),
		ContentType: aws.String(obj.ContentType),
	}
	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s to s3: %w", key, err)
	}
	return key, nil
}

// URL returns a presigned link when a presign TTL is configured, otherwise the
// public object URL.
func (s *S3Store) URL(_ context.Context, fileID string, mode URLMode) (string, error) {
	if _, err := cleanFileID(fileID); err != nil {
		return "", err
	}
	if s.presignTTL > 0 {
		input := &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(fileID)}
		if mode == ModePreview {
			input.ResponseCacheControl = aws.String("private, max-age=300")
		}
		req, _ := s.client.GetObjectRequest(input)
		link, err := req.Presign(s.presignTTL)
		if err != nil {
			return "", fmt.Errorf("presign %s: %w", fileID, err)
		}
		return link, nil
	}
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, fileID), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, fileID), nil
}

// Delete removes the object.
func (s *S3Store) Delete(ctx context.Context, fileID string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return fmt.Errorf("delete %s from s3: %w", fileID, err)
	}
	return nil
}
