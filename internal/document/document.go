// Package document is the policy-document storage collaborator. Objects live
// under {ownerID}/{unixMillis}_{sanitizedPolicyNumber}.{ext} so documents sort
// by upload time within an owner and the name survives re-submission.
package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"policydesk/internal/platform/config"
)

// Store is the document-storage collaborator consumed by the submission
// service. Upload failures degrade to "record saved without document", so
// implementations must keep errors distinguishable from success.
type Store interface {
	Upload(ctx context.Context, ownerID, policyNumber, filename, contentType string, payload []byte) (string, error)
	Remove(ctx context.Context, objectPath string) error
	Download(ctx context.Context, objectPath string) ([]byte, error)
}

// MinioStore stores documents in a MinIO/S3 bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(cfg config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.MinioBucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, ownerID, policyNumber, filename, contentType string, payload []byte) (string, error) {
	objectPath := ObjectPath(ownerID, policyNumber, filename, time.Now())
	_, err := s.client.PutObject(ctx, s.bucket, objectPath,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}
	return objectPath, nil
}

func (s *MinioStore) Remove(ctx context.Context, objectPath string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}

func (s *MinioStore) Download(ctx context.Context, objectPath string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer obj.Close()
	payload, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return payload, nil
}

// ObjectPath builds the storage path for an uploaded document.
func ObjectPath(ownerID, policyNumber, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%d_%s%s", ownerID, now.UnixMilli(), sanitize(policyNumber), ext)
}

// sanitize keeps only characters safe in object names.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
