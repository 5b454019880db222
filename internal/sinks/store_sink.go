// internal/sinks/store_sink.go
package sinks

import (
	"context"
	"fmt"
	"os"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/storage"
)

// StoreSink envia o arquivo salvo para um storage.ImageStore, usando a
// chave relativa à raiz de imagens.
type StoreSink struct {
	name  string
	store storage.ImageStore
}

func NewStoreSink(name string, store storage.ImageStore) *StoreSink {
	if store == nil {
		return nil
	}
	return &StoreSink{name: name, store: store}
}

func (s *StoreSink) Name() string { return s.name }

func (s *StoreSink) Enabled() bool { return s != nil && s.store != nil }

func (s *StoreSink) Handle(ctx context.Context, snap core.Snapshot) error {
	f, err := os.Open(snap.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", snap.Path, err)
	}
	defer f.Close()

	size := snap.Size
	if size <= 0 {
		st, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", snap.Path, err)
		}
		size = st.Size()
	}

	if _, err := s.store.SaveSnapshot(ctx, snap.Key, f, size, "image/jpeg"); err != nil {
		return err
	}
	return nil
}

func (s *StoreSink) Close() error { return s.store.Close() }
