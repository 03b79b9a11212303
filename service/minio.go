package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ScreenshotStorage keeps proof screenshots attached to submissions
type ScreenshotStorage interface {
	StoreScreenshot(ctx context.Context, submissionID, filename string, reader io.Reader, size int64, contentType string) (string, error)
	DeleteFile(ctx context.Context, objectName string) error
}

// EvidenceStorage stores submission evidence in a MinIO bucket
type EvidenceStorage struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewEvidenceStorage(cfg *config.MinioConfig) (*EvidenceStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &EvidenceStorage{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *EvidenceStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ScreenshotObjectName is the object key for a submission's screenshot
func ScreenshotObjectName(submissionID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "screenshot"
	}
	return fmt.Sprintf("screenshots/%s/%s", submissionID, base)
}

// StoreScreenshot uploads the screenshot and returns a URL the review
// console can open: the plain object URL when minio.public_urls is set,
// otherwise a presigned one.
func (s *EvidenceStorage) StoreScreenshot(ctx context.Context, submissionID, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	objectName := ScreenshotObjectName(submissionID, filename)
	if err := s.UploadFile(ctx, objectName, reader, size, contentType); err != nil {
		return "", err
	}
	if s.config.PublicURLs {
		return s.GetPublicURL(objectName), nil
	}
	return s.GetPresignedURL(ctx, objectName)
}

// UploadFile uploads a file to the bucket under objectName
func (s *EvidenceStorage) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// GetPresignedURL generates a presigned URL for the object with expiration
func (s *EvidenceStorage) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// DeleteFile removes an object, used to roll back an upload whose
// submission could not be saved
func (s *EvidenceStorage) DeleteFile(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// GetPublicURL returns the unsigned object URL. It only resolves when the
// bucket policy allows anonymous reads.
func (s *EvidenceStorage) GetPublicURL(objectName string) string {
	protocol := "http"
	if s.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.config.Endpoint, s.bucket, objectName)
}

var _ ScreenshotStorage = (*EvidenceStorage)(nil)
