// internal/storage/blob_store.go
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobStore espelha as imagens num bucket do Go CDK: file:///dir para
// um disco de backup, s3://bucket?endpoint=... para S3 ou MinIO.
type BlobStore struct {
	bucket *blob.Bucket
	url    string
}

func NewBlobStoreFromEnv(ctx context.Context) (*BlobStore, error) {
	u := os.Getenv("BLOB_URL")
	if u == "" {
		return nil, fmt.Errorf("BLOB_URL não configurada")
	}
	return OpenBlobStore(ctx, u)
}

func OpenBlobStore(ctx context.Context, bucketURL string) (*BlobStore, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	slog.Info("blob bucket opened", "component", "blob", "url", bucketURL)
	return &BlobStore{bucket: bkt, url: bucketURL}, nil
}

// NewBlobStore embrulha um bucket já aberto (ex.: mem:// nos testes).
func NewBlobStore(bkt *blob.Bucket, name string) *BlobStore {
	return &BlobStore{bucket: bkt, url: name}
}

func (s *BlobStore) SaveSnapshot(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("open writer %s: %w", key, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	// o upload só é confirmado no Close
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit %s: %w", key, err)
	}
	return key, nil
}

func (s *BlobStore) Bucket() *blob.Bucket { return s.bucket }

func (s *BlobStore) Close() error { return s.bucket.Close() }
