// internal/fetcher/client.go
package fetcher

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewHTTPClient monta o client compartilhado por todas as câmeras de um
// processo. Sem Client.Timeout: cada tentativa traz o seu via contexto.
// insecure aceita os certificados auto-assinados das câmeras.
func NewHTTPClient(insecure bool, maxConnsPerHost int) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecure} //nolint:gosec
	if maxConnsPerHost > 0 {
		tr.MaxConnsPerHost = maxConnsPerHost
		tr.MaxIdleConnsPerHost = maxConnsPerHost
	}
	tr.IdleConnTimeout = 90 * time.Second
	return &http.Client{Transport: tr}
}
