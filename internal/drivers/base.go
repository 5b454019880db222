// internal/drivers/base.go
package drivers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sua-org/cam-timelapse/internal/core"
)

// SnapshotDriver sabe montar e emitir o GET de snapshot de um fabricante.
// O *http.Client é do chamador (compartilhado entre câmeras); o driver
// nunca o reconfigura.
type SnapshotDriver interface {
	SnapshotURL() string
	Fetch(ctx context.Context, client *http.Client) (*http.Response, error)
}

type DriverFactory func(cam core.Camera) (SnapshotDriver, error)

// registry: fabricante:model -> factory
var registry = map[string]DriverFactory{}

// RegisterDriver é chamado no init() de cada driver (generic, Hikvision, Dahua).
func RegisterDriver(manufacturer, model string, f DriverFactory) {
	registry[normalize(manufacturer)+":"+normalize(model)] = f
}

// GetDriver escolhe o driver pelo fabricante/modelo. Câmera sem fabricante
// cai no driver genérico (URL direta, estilo UniFi snap.jpeg).
func GetDriver(cam core.Camera) (SnapshotDriver, error) {
	manufacturer := normalize(cam.Manufacturer)
	if manufacturer == "" {
		manufacturer = "generic"
	}
	if f, ok := registry[manufacturer+":"+normalize(cam.Model)]; ok {
		return f(cam)
	}
	// fallback: fabricante:any
	if f, ok := registry[manufacturer+":any"]; ok {
		return f(cam)
	}
	return nil, ErrDriverNotFound
}

func normalize(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range strings.TrimSpace(s) {
		// remove espaços, hífen, underline
		if r == ' ' || r == '-' || r == '_' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r = r + 32
		}
		b = append(b, r)
	}
	return string(b)
}

// baseURL monta scheme://host[:port] a partir da câmera.
func baseURL(cam core.Camera) string {
	scheme := "http"
	if cam.UseTLS {
		scheme = "https"
	}
	host := cam.Host
	if cam.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, cam.Port)
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}
