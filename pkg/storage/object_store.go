package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore provides access to object storage. Keys are always chosen by the caller.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PublicURL(ctx context.Context, key string) (string, error)
}

// MinioConfig configures a MinioStore.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL, when set, is used to build unsigned URLs (public-read bucket).
	// Otherwise URLs are pre-signed for PresignExpiry.
	PublicBaseURL string
	PresignExpiry time.Duration
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	presignExpiry time.Duration
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &MinioStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		presignExpiry: expiry,
	}, nil
}

// Put uploads an object.
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Get downloads an object fully into memory.
func (m *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.translate("get object", err)
	}
	defer obj.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj); err != nil {
		return nil, m.translate("read object", err)
	}
	return buf.Bytes(), nil
}

// Delete removes an object. A missing object reports ErrObjectNotFound.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		return m.translate("stat object", err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PublicURL returns an accessible URL for the object.
func (m *MinioStore) PublicURL(ctx context.Context, key string) (string, error) {
	if m.publicBaseURL != "" {
		return m.publicBaseURL + "/" + m.bucket + "/" + escapeKey(key), nil
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

func (m *MinioStore) translate(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return fmt.Errorf("%s: %w", op, ErrObjectNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
