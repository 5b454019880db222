// internal/core/types.go
package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Camera descreve uma câmera de onde puxamos snapshots.
// ID é o identificador opaco usado em diretórios, nomes de arquivo e tópicos.
type Camera struct {
	ID           string `json:"name" mapstructure:"name"`
	Manufacturer string `json:"manufacturer,omitempty" mapstructure:"manufacturer"`
	Model        string `json:"model,omitempty" mapstructure:"model"`
	Host         string `json:"host,omitempty" mapstructure:"host"`
	Port         int    `json:"port,omitempty" mapstructure:"port"`
	Username     string `json:"username,omitempty" mapstructure:"username"`
	Password     string `json:"-" mapstructure:"password"`
	UseTLS       bool   `json:"use_tls,omitempty" mapstructure:"use_tls"`

	// SnapshotURL sobrescreve a rota padrão do driver.
	SnapshotURL string `json:"snapshot_url,omitempty" mapstructure:"snapshot_url"`
}

// OutcomeKind identifica a variante de um FetchOutcome.
type OutcomeKind string

const (
	OutcomeSaved        OutcomeKind = "saved"
	OutcomeEmptyBody    OutcomeKind = "empty_body"
	OutcomeHTTPError    OutcomeKind = "http_error"
	OutcomeNetworkError OutcomeKind = "network_error"
	OutcomeTimeout      OutcomeKind = "timeout"
	OutcomeCancelled    OutcomeKind = "cancelled"
)

// FetchOutcome é o resultado de uma tentativa (ou da busca lógica inteira).
// Só os campos da variante em Kind são significativos.
type FetchOutcome struct {
	Kind       OutcomeKind
	Bytes      int64  // Saved
	Path       string // Saved
	StatusCode int    // HTTPError
	Err        error  // NetworkError, Timeout
}

func Saved(path string, n int64) FetchOutcome {
	return FetchOutcome{Kind: OutcomeSaved, Path: path, Bytes: n}
}

func EmptyBody() FetchOutcome { return FetchOutcome{Kind: OutcomeEmptyBody} }

func HTTPError(status int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeHTTPError, StatusCode: status}
}

func NetworkError(cause error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeNetworkError, Err: cause}
}

func Timeout(cause error) FetchOutcome { return FetchOutcome{Kind: OutcomeTimeout, Err: cause} }

func Cancelled() FetchOutcome { return FetchOutcome{Kind: OutcomeCancelled} }

func (o FetchOutcome) String() string {
	switch o.Kind {
	case OutcomeSaved:
		return fmt.Sprintf("saved(%d bytes)", o.Bytes)
	case OutcomeHTTPError:
		return fmt.Sprintf("http_error(%d)", o.StatusCode)
	case OutcomeNetworkError, OutcomeTimeout:
		if o.Err != nil {
			return fmt.Sprintf("%s(%v)", o.Kind, o.Err)
		}
	}
	return string(o.Kind)
}

type outcomeJSON struct {
	Kind       OutcomeKind `json:"kind"`
	Bytes      int64       `json:"bytes,omitempty"`
	Path       string      `json:"path,omitempty"`
	StatusCode int         `json:"status_code,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// MarshalJSON achata o erro em string para MQTT / API de status.
func (o FetchOutcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Kind:       o.Kind,
		Bytes:      o.Bytes,
		Path:       o.Path,
		StatusCode: o.StatusCode,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

// AttemptContext é imutável por tentativa; Number começa em 1 e cresce
// entre os retries da mesma busca lógica.
type AttemptContext struct {
	Camera   Camera
	Number   int
	Dir      string
	Deadline time.Time
}

// CycleResult agrega o resultado final de cada câmera num ciclo.
// Serve só para observabilidade; o artefato durável é o arquivo de imagem.
type CycleResult struct {
	ID        string                  `json:"id"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
	Outcomes  map[string]FetchOutcome `json:"outcomes"`
}

// Count devolve quantas câmeras terminaram o ciclo com a variante informada.
func (r CycleResult) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Counts agrupa os outcomes por variante.
func (r CycleResult) Counts() map[OutcomeKind]int {
	out := make(map[OutcomeKind]int)
	for _, o := range r.Outcomes {
		out[o.Kind]++
	}
	return out
}

// Snapshot é uma imagem já gravada em disco, entregue aos sinks.
type Snapshot struct {
	Camera  string
	Path    string
	Key     string // caminho relativo à raiz de imagens, com "/"
	Size    int64
	TakenAt time.Time
}
