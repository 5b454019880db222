// internal/layout/layout.go
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalidCamera = errors.New("invalid camera identifier")

// Resolver monta a árvore <root>/<camera>/<ano>/<mês>/<dia>.
// Não guarda estado mutável: pode ser chamado em paralelo para câmeras
// diferentes (ou iguais), já que os.MkdirAll é idempotente.
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

func (r *Resolver) Root() string { return r.root }

// PathFor só calcula o caminho, sem tocar no disco.
func (r *Resolver) PathFor(camera string, now time.Time) (string, error) {
	if err := ValidateCamera(camera); err != nil {
		return "", err
	}
	return filepath.Join(
		r.root,
		camera,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		fmt.Sprintf("%02d", now.Day()),
	), nil
}

// EnsureDirectoryFor calcula o caminho do dia e cria os segmentos que faltam.
func (r *Resolver) EnsureDirectoryFor(camera string, now time.Time) (string, error) {
	path, err := r.PathFor(camera, now)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", path, err)
	}
	return path, nil
}

// KeyFor converte um arquivo dentro da raiz na chave usada nos sinks
// (camera/AAAA/MM/DD/arquivo.jpg).
func (r *Resolver) KeyFor(path string) (string, error) {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", path, r.root)
	}
	return filepath.ToSlash(rel), nil
}

// ValidateCamera barra nomes que escapariam da raiz de imagens.
func ValidateCamera(camera string) error {
	switch {
	case strings.TrimSpace(camera) == "":
		return fmt.Errorf("%w: empty", ErrInvalidCamera)
	case camera == "." || camera == "..":
		return fmt.Errorf("%w: %q", ErrInvalidCamera, camera)
	case strings.ContainsAny(camera, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidCamera, camera)
	}
	return nil
}
