// cmd/cam-timelapse/program.go
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/kardianos/service"

	"github.com/sua-org/cam-timelapse/internal/config"
)

// program implementa service.Interface: Start não bloqueia e Stop pede o
// shutdown do agendador e espera o teardown.
type program struct {
	cfg *config.Config
	app *app

	cancel context.CancelFunc
	done   chan struct{}
	err    error
	log    *slog.Logger
}

func (p *program) Start(s service.Service) error {
	p.log = slog.Default().With("component", "main")

	ctx, cancel := context.WithCancel(context.Background())
	a, err := buildApp(ctx, p.cfg)
	if err != nil {
		cancel()
		return err
	}
	p.app = a
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if err := a.Run(ctx); err != nil {
			p.err = err
			p.log.Error("scheduler stopped with error", "err", err)
			if service.Interactive() {
				os.Exit(1)
			}
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.log.Info("stop requested, shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Grace()+5*time.Second)
	defer cancel()

	if err := p.app.Shutdown(ctx); err != nil {
		p.log.Warn("shutdown did not finish in time", "err", err)
	}
	p.cancel()

	select {
	case <-p.done:
	case <-ctx.Done():
	}
	p.app.Close()
	return nil
}
