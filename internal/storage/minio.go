package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// MinioStorage uploads videos to an S3-compatible bucket. The bucket is expected to allow
// anonymous reads, since the returned URL is stored on the project and never re-signed.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

func NewMinioStorage(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, log logrus.FieldLogger) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &MinioStorage{client: client, bucket: bucket}
	if err := s.ensureBucketExists(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s exists: %w", bucket, err)
	}
	return s, nil
}

func (s *MinioStorage) ensureBucketExists(ctx context.Context, log logrus.FieldLogger) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	log.WithField("bucket", s.bucket).Info("created storage bucket")
	return nil
}

func (s *MinioStorage) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return objectURL(s.client.EndpointURL(), s.bucket, name), nil
}

func objectURL(endpoint *url.URL, bucket, name string) string {
	u := *endpoint
	u.Path = "/" + bucket + "/" + name
	return u.String()
}
