// internal/drivers/dahua.go
package drivers

import (
	"context"
	"net/http"

	"github.com/sua-org/cam-timelapse/internal/core"
)

// Em muitos modelos a rota é /cgi-bin/snapshot.cgi?channel=1.
// Se o teu for diferente, usa snapshot_url na config da câmera.
const dahuaSnapshotPath = "/cgi-bin/snapshot.cgi?channel=1"

type DahuaDriver struct {
	cam core.Camera
	url string
}

func NewDahuaDriver(cam core.Camera) (SnapshotDriver, error) {
	u := cam.SnapshotURL
	if u == "" {
		if cam.Host == "" {
			return nil, ErrNoSnapshotURL
		}
		u = baseURL(cam) + dahuaSnapshotPath
	}
	return &DahuaDriver{cam: cam, url: u}, nil
}

func init() {
	// fabricante "Dahua", modelo "any"
	RegisterDriver("dahua", "any", NewDahuaDriver)
}

func (d *DahuaDriver) SnapshotURL() string { return d.url }

func (d *DahuaDriver) Fetch(ctx context.Context, client *http.Client) (*http.Response, error) {
	return doDigest(ctx, client, d.url, d.cam.Username, d.cam.Password)
}
