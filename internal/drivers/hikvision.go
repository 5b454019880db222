// internal/drivers/hikvision.go
package drivers

import (
	"context"
	"net/http"

	"github.com/sua-org/cam-timelapse/internal/core"
)

const hikvisionPicturePath = "/ISAPI/Streaming/channels/101/picture"

// HikvisionDriver pega o JPEG do canal principal via ISAPI, com Digest.
type HikvisionDriver struct {
	cam core.Camera
	url string
}

func NewHikvisionDriver(cam core.Camera) (SnapshotDriver, error) {
	u := cam.SnapshotURL
	if u == "" {
		if cam.Host == "" {
			return nil, ErrNoSnapshotURL
		}
		u = baseURL(cam) + hikvisionPicturePath
	}
	return &HikvisionDriver{cam: cam, url: u}, nil
}

func init() {
	// registra Hikvision para qualquer modelo: "hikvision:any"
	RegisterDriver("hikvision", "any", NewHikvisionDriver)
}

func (d *HikvisionDriver) SnapshotURL() string { return d.url }

func (d *HikvisionDriver) Fetch(ctx context.Context, client *http.Client) (*http.Response, error) {
	return doDigest(ctx, client, d.url, d.cam.Username, d.cam.Password)
}
