// internal/sinks/manager.go
package sinks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sua-org/cam-timelapse/internal/core"
)

type Manager struct {
	sinks []Sink

	// timeout padrão para cada sink
	perSinkTimeout time.Duration
	log            *slog.Logger
}

func NewManager(sinks []Sink, perSinkTimeout time.Duration) *Manager {
	if perSinkTimeout <= 0 {
		perSinkTimeout = 30 * time.Second
	}
	// remove nils e sinks desabilitados
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil || !s.Enabled() {
			continue
		}
		filtered = append(filtered, s)
	}
	return &Manager{
		sinks:          filtered,
		perSinkTimeout: perSinkTimeout,
		log:            slog.Default().With("component", "sinks"),
	}
}

func (m *Manager) Enabled() bool {
	return m != nil && len(m.sinks) > 0
}

func (m *Manager) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		out = append(out, s.Name())
	}
	return out
}

func (m *Manager) Has(name string) bool {
	if m == nil {
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range m.sinks {
		if strings.ToLower(s.Name()) == name {
			return true
		}
	}
	return false
}

// Dispatch roda todos os sinks em sequência. Nunca dá panic (recover por
// sink) e devolve os erros juntos só para quem quiser contar.
func (m *Manager) Dispatch(ctx context.Context, snap core.Snapshot) error {
	if m == nil || len(m.sinks) == 0 {
		return nil
	}

	var errs []error
	for _, s := range m.sinks {
		ctxSink, cancel := context.WithTimeout(ctx, m.perSinkTimeout)
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("panic in sink", "sink", s.Name(), "panic", r, "stack", string(debug.Stack()))
					err = fmt.Errorf("panic in sink %s", s.Name())
				}
			}()
			return s.Handle(ctxSink, snap)
		}()
		cancel()

		if err != nil {
			m.log.Warn("sink failed", "sink", s.Name(), "camera", snap.Camera, "key", snap.Key, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		m.log.Debug("sink done", "sink", s.Name(), "camera", snap.Camera, "key", snap.Key)
	}
	return errors.Join(errs...)
}

// Close fecha os sinks que seguram recursos (buckets).
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
