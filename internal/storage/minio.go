package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectScheme prefixes document URLs that point into the bucket
const ObjectScheme = "minio://"

// MinioService stores uploaded document images
type MinioService struct {
	client *minio.Client
	bucket string
}

// NewMinioFromEnv connects using MINIO_* environment variables and makes sure
// the bucket exists.
func NewMinioFromEnv(ctx context.Context) (*MinioService, error) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		return nil, ErrNoObjectStore
	}

	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "kyc-documents"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: os.Getenv("MINIO_USE_SSL") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return &MinioService{client: client, bucket: bucket}, nil
}

// Bucket returns the bucket documents are stored in
func (s *MinioService) Bucket() string { return s.bucket }

// UploadDocument stores a document image under {caseID}/YYYY/MM/{uuid}{ext}
// and returns its minio:// reference.
func (s *MinioService) UploadDocument(ctx context.Context, caseID string, data []byte, contentType string) (string, error) {
	now := time.Now()
	objectName := fmt.Sprintf("%s/%d/%02d/%s%s",
		caseID,
		now.Year(),
		now.Month(),
		uuid.NewString(),
		FileExtension(contentType),
	)

	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	return ObjectScheme + s.bucket + "/" + objectName, nil
}

// Fetch reads an object by its minio:// reference, up to maxBytes
func (s *MinioService) Fetch(ctx context.Context, ref string, maxBytes int64) ([]byte, error) {
	bucket, objectName, err := ParseObjectRef(ref)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectName, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: object exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// PresignedURL generates a temporary viewing URL for a minio:// reference
func (s *MinioService) PresignedURL(ctx context.Context, ref string) (string, error) {
	bucket, objectName, err := ParseObjectRef(ref)
	if err != nil {
		return "", err
	}

	u, err := s.client.PresignedGetObject(ctx, bucket, objectName, 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// Ping checks the bucket is reachable
func (s *MinioService) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// ParseObjectRef splits minio://bucket/path/to/object
func ParseObjectRef(ref string) (bucket, objectName string, err error) {
	rest, ok := strings.CutPrefix(ref, ObjectScheme)
	if !ok {
		return "", "", fmt.Errorf("not an object reference: %q", ref)
	}
	bucket, objectName, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || objectName == "" {
		return "", "", fmt.Errorf("malformed object reference: %q", ref)
	}
	return bucket, objectName, nil
}

// FileExtension extracts file extension from content type
func FileExtension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/tiff":
		return ".tiff"
	case "image/bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}
