// internal/storage/store.go
package storage

import (
	"context"
	"io"
	"os"
	"strings"
)

// ImageStore recebe cópias das imagens já gravadas em disco.
// Devolve a URL (ou chave) onde o objeto ficou disponível.
type ImageStore interface {
	SaveSnapshot(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Close() error
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func joinURLPath(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}
