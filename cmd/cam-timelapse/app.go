// cmd/cam-timelapse/app.go
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sua-org/cam-timelapse/internal/config"
	"github.com/sua-org/cam-timelapse/internal/fetcher"
	"github.com/sua-org/cam-timelapse/internal/layout"
	"github.com/sua-org/cam-timelapse/internal/metrics"
	"github.com/sua-org/cam-timelapse/internal/mqttclient"
	"github.com/sua-org/cam-timelapse/internal/retry"
	"github.com/sua-org/cam-timelapse/internal/server"
	"github.com/sua-org/cam-timelapse/internal/sinks"
	"github.com/sua-org/cam-timelapse/internal/supervisor"
)

// app junta tudo que um processo de captura precisa.
type app struct {
	sched   *supervisor.Scheduler
	server  *server.Server
	mqtt    *mqttclient.Client
	sinks   *sinks.Manager
	metrics *metrics.Metrics
	log     *slog.Logger
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := slog.Default().With("component", "main")
	a := &app{metrics: metrics.New(), log: log}

	if cfg.MQTTEnabled {
		cli, err := mqttclient.NewClientFromEnv("cam-timelapse")
		if err != nil {
			// segue sem status remoto; captura local não depende do broker
			log.Warn("mqtt not connected, status publishing disabled", "err", err)
		} else {
			a.mqtt = cli
		}
	}

	a.sinks = sinks.LoadFromEnv(ctx, cfg.SinkNames())

	var reporter *supervisor.StatusReporter
	if a.mqtt != nil {
		reporter = supervisor.NewStatusReporter(a.mqtt, cfg.MQTTBaseTopic)
	}

	client := fetcher.NewHTTPClient(cfg.InsecureTLS, 0)
	sched, err := supervisor.New(supervisor.Options{
		Cameras:  cfg.Cameras,
		Interval: cfg.Interval(),
		Timeout:  cfg.Timeout(),
		Deadline: cfg.Deadline(),
		Grace:    cfg.Grace(),
		Policy:   retry.New(cfg.FetchMaxRetries, cfg.RetryDelay()),
		Resolver: layout.NewResolver(cfg.ImageOutputPath),
		Client:   client,
		Sinks:    a.sinks,
		Metrics:  a.metrics,
		Reporter: reporter,
		Logger:   slog.Default(),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	a.sched = sched

	if cfg.HTTPAddr != "" {
		a.server = server.New(cfg.HTTPAddr, sched, cfg.Cameras, a.metrics.Handler())
	}

	log.Info("configuration loaded",
		"cameras", len(cfg.Cameras),
		"image_root", cfg.ImageOutputPath,
		"interval", cfg.Interval(),
		"max_retries", cfg.FetchMaxRetries,
		"http_timeout", cfg.Timeout(),
		"sinks", a.sinks.Names(),
		"mqtt", a.mqtt != nil,
	)
	return a, nil
}

// Run bloqueia até o agendador terminar.
func (a *app) Run(ctx context.Context) error {
	if a.server != nil {
		go func() {
			if err := a.server.Start(ctx); err != nil {
				a.log.Error("status server failed", "err", err)
			}
		}()
	}
	return a.sched.Run(ctx)
}

func (a *app) Shutdown(ctx context.Context) error {
	return a.sched.Shutdown(ctx)
}

func (a *app) Close() {
	if err := a.sinks.Close(); err != nil {
		a.log.Warn("closing sinks", "err", err)
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
}
