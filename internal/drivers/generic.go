// internal/drivers/generic.go
package drivers

import (
	"context"
	"net/http"

	"github.com/sua-org/cam-timelapse/internal/core"
)

// GenericDriver busca snapshot_url direto (UniFi "anonymous snapshot",
// qualquer câmera que sirva um JPEG por GET). Usa basic auth se houver usuário.
type GenericDriver struct {
	cam core.Camera
	url string
}

func NewGenericDriver(cam core.Camera) (SnapshotDriver, error) {
	u := cam.SnapshotURL
	if u == "" {
		if cam.Host == "" {
			return nil, ErrNoSnapshotURL
		}
		u = baseURL(cam) + "/snap.jpeg"
	}
	return &GenericDriver{cam: cam, url: u}, nil
}

func init() {
	RegisterDriver("generic", "any", NewGenericDriver)
	RegisterDriver("unifi", "any", NewGenericDriver)
}

func (d *GenericDriver) SnapshotURL() string { return d.url }

func (d *GenericDriver) Fetch(ctx context.Context, client *http.Client) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, err
	}
	if d.cam.Username != "" {
		req.SetBasicAuth(d.cam.Username, d.cam.Password)
	}
	return client.Do(req)
}
