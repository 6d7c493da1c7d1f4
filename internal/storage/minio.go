package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/pkg/logger"
)

// MinIOClient writes audit exports to a single bucket.
type MinIOClient struct {
	client *minio.Client
	bucket string
}

func NewMinIOClient(cfg config.MinIOConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (m *MinIOClient) Bucket() string {
	return m.bucket
}

func (m *MinIOClient) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	details := map[string]interface{}{
		"object_name":  objectName,
		"size":         size,
		"content_type": contentType,
		"bucket":       m.bucket,
	}
	if err != nil {
		logger.Error("minio_upload_failed", err, details)
		return err
	}
	logger.Debug("minio_upload_success", details)
	return nil
}

// ListObjects returns the names of objects under prefix, oldest key first.
func (m *MinIOClient) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			logger.Error("minio_list_failed", obj.Err, map[string]interface{}{
				"prefix": prefix,
				"bucket": m.bucket,
			})
			return nil, obj.Err
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (m *MinIOClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", m.bucket, err)
	}
	logger.Info("minio_bucket_created", map[string]interface{}{"bucket": m.bucket})
	return nil
}
