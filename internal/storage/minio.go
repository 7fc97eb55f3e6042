package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dmitrijs2005/civilforms/internal/common"
)

// MinioConfig holds settings for a MinIO deployment.
type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	PresignTTL    time.Duration
}

// MinioStore is an ObjectStore backed by minio-go.
type MinioStore struct {
	client *minio.Client
	cfg    MinioConfig
}

// NewMinioStore connects and creates the bucket when it does not exist.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, mapMinioError("bucket exists", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, mapMinioError("make bucket", err)
		}
	}
	return &MinioStore{client: client, cfg: cfg}, nil
}

func (m *MinioStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, m.cfg.Bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return mapMinioError("put object", err)
	}
	return nil
}

func (m *MinioStore) Remove(ctx context.Context, keys []string) error {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	var failed []string
	var denied bool
	var first error
	for rerr := range m.client.RemoveObjects(ctx, m.cfg.Bucket, objects, minio.RemoveObjectsOptions{}) {
		failed = append(failed, rerr.ObjectName)
		if isDeniedCode(minio.ToErrorResponse(rerr.Err).Code) {
			denied = true
		}
		if first == nil {
			first = rerr.Err
		}
	}
	switch {
	case len(failed) == 0:
		return nil
	case denied:
		return fmt.Errorf("%w: delete %s", common.ErrPermissionDenied, strings.Join(failed, ", "))
	default:
		return fmt.Errorf("delete failed for %s: %w", strings.Join(failed, ", "), first)
	}
}

func (m *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var items []ObjectInfo
	for o := range m.client.ListObjects(ctx, m.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if o.Err != nil {
			return nil, mapMinioError("list objects", o.Err)
		}
		items = append(items, ObjectInfo{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
	}
	return items, nil
}

func (m *MinioStore) PublicURL(ctx context.Context, key string) (string, error) {
	if m.cfg.PublicBaseURL != "" {
		return JoinPublicURL(m.cfg.PublicBaseURL, key), nil
	}
	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, key, m.cfg.PresignTTL, url.Values{})
	if err != nil {
		return "", mapMinioError("presign get", err)
	}
	return u.String(), nil
}

func mapMinioError(op string, err error) error {
	if isDeniedCode(minio.ToErrorResponse(err).Code) {
		return fmt.Errorf("%w: %s: %v", common.ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
