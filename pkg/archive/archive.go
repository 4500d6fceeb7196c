// Package archive keeps raw webhook deliveries in S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Archiver names and uploads delivery payloads.
type Archiver struct {
	uploader Uploader
	now      func() time.Time
	newID    func() string
}

func New(uploader Uploader) *Archiver {
	return &Archiver{
		uploader: uploader,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Store uploads body under deliveries/<source>/YYYY/MM/DD/<user>/<id>.json
// and returns the key. An empty user id is filed under "_anonymous".
func (a *Archiver) Store(ctx context.Context, source, userID string, body []byte) (string, error) {
	if userID == "" {
		userID = "_anonymous"
	}
	now := a.now()
	key := fmt.Sprintf("deliveries/%s/%04d/%02d/%02d/%s/%s.json",
		source, now.Year(), now.Month(), now.Day(), url.PathEscape(userID), a.newID())
	if err := a.uploader.Upload(ctx, key, body); err != nil {
		return "", err
	}
	return key, nil
}

// MinioUploader writes objects into one bucket.
type MinioUploader struct {
	client *minio.Client
	bucket string
}

// NewMinioUploader connects to an S3-compatible endpoint.
func NewMinioUploader(endpoint, accessKey, secretKey, bucket string, secure bool) (*MinioUploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: minio init: %w", err)
	}
	return &MinioUploader{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *MinioUploader) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("archive: bucket check %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("archive: make bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *MinioUploader) Upload(ctx context.Context, key string, body []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
