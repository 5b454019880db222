package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/metrics"
	"github.com/sua-org/cam-timelapse/internal/supervisor"
)

type fakeSource struct {
	state supervisor.ScheduleState
	last  *core.CycleResult
}

func (f *fakeSource) State() supervisor.ScheduleState { return f.state }

func (f *fakeSource) LastCycle() (core.CycleResult, bool) {
	if f.last == nil {
		return core.CycleResult{}, false
	}
	return *f.last, true
}

var testCameras = []core.Camera{
	{ID: "cam-a", SnapshotURL: "http://cam-a/snap.jpeg", Password: "hunter2"},
	{ID: "cam-b"},
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New("127.0.0.1:0", &fakeSource{}, testCameras, nil)
	rec := get(t, s.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestStatusWithoutCycle(t *testing.T) {
	s := New("127.0.0.1:0", &fakeSource{}, testCameras, nil)
	rec := get(t, s.Handler(), "/api/status")
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "running" || body["cameras"].(float64) != 2 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if _, ok := body["last_cycle"]; ok {
		t.Fatalf("no cycle yet, body %s", rec.Body.String())
	}
}

func TestStatusWithCycle(t *testing.T) {
	src := &fakeSource{
		state: supervisor.ScheduleState{InFlight: []string{"cam-b"}, Cancelled: true},
		last: &core.CycleResult{
			ID:       "cycle-1",
			Duration: 2 * time.Second,
			Outcomes: map[string]core.FetchOutcome{
				"cam-a": core.Saved("/x.jpg", 42),
				"cam-b": core.Timeout(context.DeadlineExceeded),
			},
		},
	}
	s := New("127.0.0.1:0", src, testCameras, nil)
	rec := get(t, s.Handler(), "/api/status")

	var body struct {
		Status    string `json:"status"`
		LastCycle struct {
			ID         string `json:"id"`
			DurationMS int64  `json:"duration_ms"`
			Outcomes   map[string]struct {
				Kind  string `json:"kind"`
				Error string `json:"error"`
			} `json:"outcomes"`
		} `json:"last_cycle"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "stopping" || body.LastCycle.ID != "cycle-1" || body.LastCycle.DurationMS != 2000 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if o := body.LastCycle.Outcomes["cam-b"]; o.Kind != "timeout" || o.Error == "" {
		t.Fatalf("unexpected cam-b outcome %+v", o)
	}
}

func TestCameraEndpoint(t *testing.T) {
	src := &fakeSource{last: &core.CycleResult{
		ID:       "cycle-9",
		Outcomes: map[string]core.FetchOutcome{"cam-a": core.HTTPError(401)},
	}}
	s := New("127.0.0.1:0", src, testCameras, nil)

	rec := get(t, s.Handler(), "/api/cameras/cam-a")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Fatalf("password leaked: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status_code":401`) {
		t.Fatalf("outcome missing: %s", rec.Body.String())
	}

	if rec := get(t, s.Handler(), "/api/cameras/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.ObserveFetch("cam-a", core.Saved("/x.jpg", 1), false)
	s := New("127.0.0.1:0", &fakeSource{}, testCameras, m.Handler())

	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `timelapse_fetches_total{camera="cam-a",outcome="saved"} 1`) {
		t.Fatalf("metric missing:\n%s", rec.Body.String())
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := New("127.0.0.1:0", &fakeSource{}, testCameras, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
