// internal/sinks/sink.go
package sinks

import (
	"context"

	"github.com/sua-org/cam-timelapse/internal/core"
)

// Sink recebe cada snapshot salvo em disco e faz algo com ele
// (espelhar num bucket, por exemplo).
//
// Importante: sinks não mudam o outcome da busca. Erro aqui é logado
// pelo Manager e o ciclo segue.
type Sink interface {
	Name() string
	Enabled() bool
	Handle(ctx context.Context, snap core.Snapshot) error
}
