// internal/storage/minio_store.go
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// MinioConfigFromEnv lê MINIO_* (mesmas variáveis do deploy de câmeras).
func MinioConfigFromEnv() MinioConfig {
	return MinioConfig{
		Endpoint:      getenv("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		Bucket:        getenv("MINIO_BUCKET", "timelapse-snapshots"),
		UseSSL:        getenv("MINIO_USE_SSL", "false") == "true",
		PublicBaseURL: os.Getenv("MINIO_PUBLIC_BASE_URL"),
	}
}

type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL *url.URL
	useSSL  bool
}

func NewMinioStoreFromEnv(ctx context.Context) (*MinioStore, error) {
	return NewMinioStore(ctx, MinioConfigFromEnv())
}

func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY / MINIO_SECRET_KEY não configurados")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("erro criando cliente MinIO: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Cria bucket se não existir
	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errExists := cli.BucketExists(ctx, cfg.Bucket)
		if errExists != nil || !exists {
			return nil, fmt.Errorf("erro criando/verificando bucket %s: %w", cfg.Bucket, err)
		}
	}

	var u *url.URL
	if cfg.PublicBaseURL != "" {
		u, err = url.Parse(cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("MINIO_PUBLIC_BASE_URL inválida: %w", err)
		}
	}

	slog.Info("minio connected", "component", "minio", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)

	return &MinioStore{
		client:  cli,
		bucket:  cfg.Bucket,
		baseURL: u,
		useSSL:  cfg.UseSSL,
	}, nil
}

func (s *MinioStore) SaveSnapshot(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("erro ao enviar objeto pro MinIO: %w", err)
	}
	return s.ObjectURL(key), nil
}

// ObjectURL usa MINIO_PUBLIC_BASE_URL quando configurada; senão a URL
// path-style do próprio endpoint.
func (s *MinioStore) ObjectURL(key string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = joinURLPath(u.Path, key)
		return u.String()
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.EndpointURL().Host, s.bucket, key)
}

// Stat devolve o tamanho do objeto; usado pelos testes de integração.
func (s *MinioStore) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (s *MinioStore) Close() error { return nil }
