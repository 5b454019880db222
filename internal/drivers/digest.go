// internal/drivers/digest.go
package drivers

import (
	"context"
	"crypto/md5"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// doDigest faz o GET sem Authorization; se a câmera responder 401 com
// desafio Digest, refaz a chamada assinada. Hikvision e Dahua usam isso.
func doDigest(ctx context.Context, client *http.Client, rawURL, username, password string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || username == "" {
		return resp, nil
	}

	// 401: parse WWW-Authenticate
	authHeader := resp.Header.Get("WWW-Authenticate")
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	digest, err := parseDigestAuthHeader(authHeader)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	req2, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req2.Header.Set("Connection", "keep-alive")
	req2.Header.Set("Authorization", digest.authorization(http.MethodGet, u.RequestURI(), username, password, randomHex(16)))

	return client.Do(req2)
}

type digestChallenge struct {
	Realm  string
	Nonce  string
	Qop    string
	Opaque string
}

// authorization monta o header Authorization (RFC 2617, MD5, nc fixo).
func (c *digestChallenge) authorization(method, uri, username, password, cnonce string) string {
	nc := "00000001"
	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", username, c.Realm, password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", method, uri))
	response := md5Hex(fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		ha1, c.Nonce, nc, cnonce, c.Qop, ha2,
	))

	v := fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", algorithm=MD5, response="%s", qop=%s, nc=%s, cnonce="%s"`,
		username, c.Realm, c.Nonce, uri, response, c.Qop, nc, cnonce,
	)
	if c.Opaque != "" {
		v += fmt.Sprintf(`, opaque="%s"`, c.Opaque)
	}
	return v
}

var digestRx = regexp.MustCompile(`(\w+)="([^"]*)"`)

func parseDigestAuthHeader(h string) (*digestChallenge, error) {
	if !strings.HasPrefix(strings.ToLower(h), "digest ") {
		return nil, fmt.Errorf("WWW-Authenticate is not Digest: %q", h)
	}
	h = strings.TrimSpace(h[len("Digest "):])
	res := &digestChallenge{}
	for _, kv := range digestRx.FindAllStringSubmatch(h, -1) {
		switch strings.ToLower(kv[1]) {
		case "realm":
			res.Realm = kv[2]
		case "nonce":
			res.Nonce = kv[2]
		case "qop":
			res.Qop = pickQop(kv[2])
		case "opaque":
			res.Opaque = kv[2]
		}
	}
	if res.Realm == "" || res.Nonce == "" {
		return nil, fmt.Errorf("realm/nonce missing in WWW-Authenticate: %s", h)
	}
	if res.Qop == "" {
		res.Qop = "auth"
	}
	return res, nil
}

// pickQop escolhe "auth" quando a câmera oferece "auth,auth-int".
func pickQop(v string) string {
	for _, q := range strings.Split(v, ",") {
		if strings.TrimSpace(q) == "auth" {
			return "auth"
		}
	}
	return strings.TrimSpace(v)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		// fallback fraco, mas suficiente aqui
		for i := range b {
			b[i] = byte(rand.Intn(256))
		}
	}
	return hex.EncodeToString(b)
}
