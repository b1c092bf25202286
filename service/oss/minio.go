package oss

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"PPulse/logger"
	"PPulse/tools/errs"
)

// Config for the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Store implements purge.Blobs against a MinIO/S3 bucket.
type Store struct {
	client *minio.Client
	bucket string
}

func NewStore(cfg Config) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errs.Wrap(err, "init object store client")
	}
	return &Store{client: cli, bucket: cfg.Bucket}, nil
}

// DeleteKey removes one object. Removing an absent key succeeds.
func (s *Store) DeleteKey(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return errs.WrapMsg(err, "remove object", "key", key)
	}
	return nil
}

// DeletePrefix lists and removes every object under prefix, best effort. The
// count covers objects actually removed; the first error is returned after
// the listing drains.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var removed int
	var firstErr error

	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			if firstErr == nil {
				firstErr = obj.Err
			}
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			logger.Warn("remove object failed", zap.String("key", obj.Key), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
