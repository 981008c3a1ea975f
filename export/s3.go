package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config describes an S3-compatible bucket that receives a copy of every
// exported file.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3Sink uploads export files to an S3-compatible object store.
type S3Sink struct {
	client     *minio.Client
	endpoint   string
	bucketName string
	region     string
	prefix     string
	initOnce   sync.Once
	initErr    error
}

// NewS3Sink validates cfg and builds the client. No request is made until the
// first Put.
func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Sink{
		client:     client,
		endpoint:   endpoint,
		bucketName: bucket,
		region:     region,
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}, nil
}

func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Put uploads data under the configured prefix.
func (s *S3Sink) Put(ctx context.Context, name string, data []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := s.client.PutObject(ctx, s.bucketName, s.ObjectKey(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/csv; charset=utf-8",
	})
	return err
}

// ObjectKey returns the object key used for name.
func (s *S3Sink) ObjectKey(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Location returns a s3://bucket/prefix style description.
func (s *S3Sink) Location() string {
	loc := "s3://" + s.bucketName
	if s.prefix != "" {
		loc += "/" + s.prefix
	}
	return loc
}
