package clients

import (
	"context"
	"fmt"
	"time"
)

// FileStore keeps generated report files and hands back a download URL.
type FileStore interface {
	Put(ctx context.Context, fileName, contentType string, data []byte) (url string, err error)
}

type LocalFileStore struct {
	storage *StorageClient
}

func NewLocalFileStore(storage *StorageClient) *LocalFileStore {
	return &LocalFileStore{storage: storage}
}

func (s *LocalFileStore) Put(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	saved, err := s.storage.Save(ctx, fileName, data)
	if err != nil {
		return "", err
	}
	return s.storage.GetURL(saved), nil
}

type S3FileStore struct {
	s3     *S3Client
	urlTTL time.Duration
}

func NewS3FileStore(s3 *S3Client, urlTTL time.Duration) *S3FileStore {
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &S3FileStore{s3: s3, urlTTL: urlTTL}
}

func (s *S3FileStore) Put(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	key, err := s.s3.Upload(ctx, fileName, contentType, data)
	if err != nil {
		return "", err
	}
	url, err := s.s3.GetTemporaryURL(ctx, key, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("uploaded %s but could not sign url: %w", key, err)
	}
	return url, nil
}
