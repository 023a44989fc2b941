package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore implements ContentStore using MinIO
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// MinIOConfig holds configuration for MinIO client
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// NewMinIOStore creates a new MinIO storage client
func NewMinIOStore(cfg *MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(normalizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *MinIOStore) key(p string) string {
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}

// EnsureBucket creates the private media bucket if it doesn't exist
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (s *MinIOStore) Write(ctx context.Context, p string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(p), r, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

func (s *MinIOStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	// GetObject is lazy; stat first so a missing object surfaces as ErrNotExist here.
	if _, err := s.Stat(ctx, p); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	return obj, nil
}

func (s *MinIOStore) Stat(ctx context.Context, p string) (FileInfo, error) {
	obj, err := s.client.StatObject(ctx, s.bucket, s.key(p), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return FileInfo{}, fmt.Errorf("%s: %w", p, ErrNotExist)
		}
		return FileInfo{}, fmt.Errorf("failed to stat object: %w", err)
	}
	info := FileInfo{Size: obj.Size, ModTime: obj.LastModified}
	if mtime, ok := parseMtime(obj.UserMetadata[canonicalMetaKey]); ok {
		info.ModTime = mtime
	}
	return info, nil
}

// canonicalMetaKey is how minio-go reports mtimeMetaKey back in UserMetadata.
const canonicalMetaKey = "Photovault-Mtime"

func (s *MinIOStore) Utimes(ctx context.Context, p string, _, mtime time.Time) error {
	key := s.key(p)
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          s.bucket,
			Object:          key,
			UserMetadata:    map[string]string{mtimeMetaKey: formatMtime(mtime)},
			ReplaceMetadata: true,
		},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		return fmt.Errorf("failed to set times on object: %w", err)
	}
	return nil
}

func (s *MinIOStore) Delete(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		err := s.client.RemoveObject(ctx, s.bucket, s.key(p), minio.RemoveObjectOptions{})
		if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
			errs = append(errs, fmt.Errorf("failed to delete object %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
