// cmd/cycle-watch/main.go
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sua-org/cam-timelapse/internal/mqttclient"
)

// cycle-watch assina <base>/cycle e <base>/+/status e imprime um resumo
// de cada mensagem. Ferramenta de debug.
func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	baseTopic := strings.TrimSuffix(getenv("UNIFI_TIMELAPSE_MQTT_BASE_TOPIC", "timelapse/cameras"), "/")
	topics := []string{baseTopic + "/cycle", baseTopic + "/+/status"}
	if t := os.Getenv("MQTT_DEBUG_TOPIC"); t != "" {
		topics = []string{t}
	}

	cli, err := mqttclient.NewClientFromEnv("cam-timelapse-cycle-watch")
	if err != nil {
		slog.Error("mqtt connect failed", "err", err)
		os.Exit(1)
	}
	defer cli.Close()

	for _, t := range topics {
		if err := cli.Subscribe(t, 1, handleMessage); err != nil {
			slog.Error("subscribe failed", "topic", t, "err", err)
			os.Exit(1)
		}
		slog.Info("subscribed", "topic", t)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	slog.Info("signal received, exiting")
	time.Sleep(250 * time.Millisecond)
}

func handleMessage(topic string, payload []byte) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		slog.Warn("non-json payload", "topic", topic, "payload", string(payload))
		return
	}

	if strings.HasSuffix(topic, "/cycle") {
		fmt.Printf("[cycle] %s id=%v duration=%vms cameras=%v outcomes=%s\n",
			getString(raw, "timestamp"), raw["cycle_id"], raw["duration_ms"], raw["cameras"], formatCounts(raw["outcomes"]))
		return
	}

	kind := ""
	if o, ok := raw["outcome"].(map[string]any); ok {
		kind = getString(o, "kind")
		if e := getString(o, "error"); e != "" {
			kind += " (" + e + ")"
		}
	}
	fmt.Printf("[status] %s camera=%s status=%s outcome=%s\n",
		getString(raw, "timestamp"), getString(raw, "camera"), getString(raw, "status"), kind)
}

func formatCounts(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	return ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
