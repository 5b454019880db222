// internal/sinks/load.go
package sinks

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sua-org/cam-timelapse/internal/storage"
)

// LoadFromEnv monta os sinks pedidos em names ("minio", "blob").
// Sink que não inicializa é só avisado; o fetch local segue sem ele.
func LoadFromEnv(ctx context.Context, names []string) *Manager {
	timeout := envDurationSeconds("SINK_TIMEOUT_SECONDS", 30*time.Second)
	log := slog.Default().With("component", "sinks")

	var list []Sink
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "minio":
			st, err := storage.NewMinioStoreFromEnv(ctx)
			if err != nil {
				log.Warn("minio not initialised", "err", err)
				continue
			}
			list = append(list, NewStoreSink("minio", st))
		case "blob", "bucket":
			st, err := storage.NewBlobStoreFromEnv(ctx)
			if err != nil {
				log.Warn("blob bucket not initialised", "err", err)
				continue
			}
			list = append(list, NewStoreSink("blob", st))
		case "":
		default:
			log.Warn("unknown sink, ignoring", "sink", n)
		}
	}

	m := NewManager(list, timeout)
	if m.Enabled() {
		log.Info("sinks enabled", "sinks", strings.Join(m.Names(), ","))
	} else {
		log.Info("no sinks enabled")
	}
	return m
}

func envDurationSeconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return def
	}
	return time.Duration(sec) * time.Second
}
