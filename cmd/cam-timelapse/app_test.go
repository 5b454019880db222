package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sua-org/cam-timelapse/internal/config"
	"github.com/sua-org/cam-timelapse/internal/core"
)

func TestAppRunAndShutdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\xff\xd8img"))
	}))
	defer srv.Close()

	wd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("UNIFI_TIMELAPSE_CAMERAS", "cam-a")
	t.Setenv("UNIFI_TIMELAPSE_URL_PATTERN", srv.URL+"/{camera_name}.jpg")
	t.Setenv("UNIFI_TIMELAPSE_IMAGE_OUTPUT_PATH", t.TempDir())
	t.Setenv("UNIFI_TIMELAPSE_FETCH_INTERVAL", "3600")

	c, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := buildApp(ctx, c)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	var last core.CycleResult
	for {
		var ok bool
		if last, ok = a.sched.LastCycle(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no cycle completed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if out := last.Outcomes["cam-a"]; out.Kind != core.OutcomeSaved {
		t.Fatalf("expected saved, got %s", out)
	}

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	if err := a.Shutdown(sctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
