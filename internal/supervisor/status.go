// internal/supervisor/status.go
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sua-org/cam-timelapse/internal/core"
)

// Publisher é o pedaço do mqttclient.Client que o reporter usa.
type Publisher interface {
	PublishJSON(topic string, retained bool, v any) error
}

// StatusReporter publica o resumo de cada ciclo em <base>/cycle e o
// status de cada câmera (retained) em <base>/<camera>/status.
type StatusReporter struct {
	pub       Publisher
	baseTopic string
	hostname  string
	proc      *process.Process // processo do cam-timelapse para métricas
	log       *slog.Logger
}

func NewStatusReporter(pub Publisher, baseTopic string) *StatusReporter {
	if pub == nil {
		return nil
	}
	hostname, _ := os.Hostname()
	var procHandle *process.Process
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		procHandle = p
	}
	return &StatusReporter{
		pub:       pub,
		baseTopic: strings.TrimSuffix(baseTopic, "/"),
		hostname:  hostname,
		proc:      procHandle,
		log:       slog.Default().With("component", "status"),
	}
}

func (r *StatusReporter) CycleTopic() string { return r.baseTopic + "/cycle" }

func (r *StatusReporter) CameraStatusTopic(camera string) string {
	return fmt.Sprintf("%s/%s/status", r.baseTopic, camera)
}

// Report nunca falha o ciclo: erro de publish só vira log. Com ctx
// encerrado não publica mais nada; cada publish pode esperar o broker.
func (r *StatusReporter) Report(ctx context.Context, res core.CycleResult) {
	if r == nil {
		return
	}
	now := time.Now().UTC()

	for cam, out := range res.Outcomes {
		if ctx.Err() != nil {
			r.log.Debug("status publishing skipped, shutting down", "cycle", res.ID)
			return
		}
		payload := map[string]any{
			"camera":    cam,
			"status":    cameraStatus(out),
			"outcome":   out,
			"cycle_id":  res.ID,
			"timestamp": now.Format(time.RFC3339),
		}
		if err := r.pub.PublishJSON(r.CameraStatusTopic(cam), true, payload); err != nil {
			r.log.Warn("camera status publish failed", "camera", cam, "err", err)
		}
	}

	var (
		cpuPercent  float64
		memRSSBytes uint64
	)
	if r.proc != nil {
		if cpu, err := r.proc.CPUPercent(); err == nil {
			cpuPercent = cpu
		}
		if memInfo, err := r.proc.MemoryInfo(); err == nil {
			memRSSBytes = memInfo.RSS
		}
	}

	counts := make(map[string]int)
	for kind, n := range res.Counts() {
		counts[string(kind)] = n
	}
	payload := map[string]any{
		"collector":        "cam-timelapse",
		"cycle_id":         res.ID,
		"started_at":       res.StartedAt.UTC().Format(time.RFC3339),
		"duration_ms":      res.Duration.Milliseconds(),
		"cameras":          len(res.Outcomes),
		"outcomes":         counts,
		"hostname":         r.hostname,
		"cpu_percent":      cpuPercent,
		"memory_rss_bytes": memRSSBytes,
		"timestamp":        now.Format(time.RFC3339),
	}
	if ctx.Err() != nil {
		return
	}
	if err := r.pub.PublishJSON(r.CycleTopic(), false, payload); err != nil {
		r.log.Warn("cycle publish failed", "cycle", res.ID, "err", err)
		return
	}
	r.log.Debug("cycle published", "topic", r.CycleTopic())
}

func cameraStatus(out core.FetchOutcome) string {
	switch out.Kind {
	case core.OutcomeSaved:
		return "ok"
	case core.OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}
