package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/fetcher"
	"github.com/sua-org/cam-timelapse/internal/layout"
	"github.com/sua-org/cam-timelapse/internal/retry"
)

type fetchFunc func(ctx context.Context, a core.AttemptContext, timeout time.Duration) core.FetchOutcome

func (f fetchFunc) Fetch(ctx context.Context, a core.AttemptContext, timeout time.Duration) core.FetchOutcome {
	return f(ctx, a, timeout)
}

type countingTransport struct {
	http.RoundTripper
	closed atomic.Int32
}

func (c *countingTransport) CloseIdleConnections() { c.closed.Add(1) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseOptions(t *testing.T, cams ...core.Camera) (Options, *countingTransport) {
	t.Helper()
	tr := &countingTransport{RoundTripper: http.DefaultTransport}
	return Options{
		Cameras:  cams,
		Interval: time.Hour,
		Timeout:  time.Second,
		Grace:    time.Second,
		Policy:   retry.New(2, 10*time.Millisecond),
		Resolver: layout.NewResolver(t.TempDir()),
		Client:   &http.Client{Transport: tr},
		Logger:   quietLogger(),
	}, tr
}

func mustNew(t *testing.T, opts Options) *Scheduler {
	t.Helper()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func imagesUnder(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func TestRunCyclePartialFailure(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\xff\xd8jpeg"))
	}))
	defer okSrv.Close()

	var busyHits atomic.Int32
	busySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		busyHits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer busySrv.Close()

	deadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := deadSrv.URL
	deadSrv.Close()

	opts, _ := baseOptions(t,
		core.Camera{ID: "cam-a", SnapshotURL: okSrv.URL},
		core.Camera{ID: "cam-b", SnapshotURL: busySrv.URL},
		core.Camera{ID: "cam-c", SnapshotURL: deadURL},
	)
	s := mustNew(t, opts)

	res := s.RunCycle(context.Background())

	if res.ID == "" || len(res.Outcomes) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	a := res.Outcomes["cam-a"]
	if a.Kind != core.OutcomeSaved || a.Bytes != 6 {
		t.Fatalf("cam-a: expected saved(6), got %s", a)
	}
	wantDir := filepath.Join(opts.Resolver.Root(), "cam-a", res.StartedAt.Format("2006"), res.StartedAt.Format("01"), res.StartedAt.Format("02"))
	if filepath.Dir(a.Path) != wantDir {
		t.Fatalf("cam-a saved at %s, want dir %s", a.Path, wantDir)
	}
	if b := res.Outcomes["cam-b"]; b.Kind != core.OutcomeHTTPError || b.StatusCode != 503 {
		t.Fatalf("cam-b: expected http_error(503), got %s", b)
	}
	if busyHits.Load() != 2 {
		t.Fatalf("cam-b: expected 2 attempts, got %d", busyHits.Load())
	}
	if c := res.Outcomes["cam-c"]; c.Kind != core.OutcomeNetworkError {
		t.Fatalf("cam-c: expected network_error, got %s", c)
	}
	if imgs := imagesUnder(t, opts.Resolver.Root()); len(imgs) != 1 {
		t.Fatalf("expected exactly one image, got %v", imgs)
	}
	last, ok := s.LastCycle()
	if !ok || last.ID != res.ID {
		t.Fatalf("LastCycle not recorded")
	}
	if got := s.InFlight(); len(got) != 0 {
		t.Fatalf("nothing should be in flight after the cycle, got %v", got)
	}
}

func TestRunCycleIsolatesPanics(t *testing.T) {
	opts, _ := baseOptions(t, core.Camera{ID: "bad"}, core.Camera{ID: "good"})
	opts.Fetcher = fetchFunc(func(ctx context.Context, a core.AttemptContext, _ time.Duration) core.FetchOutcome {
		if a.Camera.ID == "bad" {
			panic("driver exploded")
		}
		return core.Saved(filepath.Join(a.Dir, "x.jpg"), 10)
	})
	s := mustNew(t, opts)

	res := s.RunCycle(context.Background())
	if out := res.Outcomes["bad"]; out.Kind != core.OutcomeNetworkError || !strings.Contains(out.Err.Error(), "driver exploded") {
		t.Fatalf("panic should become network_error, got %s", out)
	}
	if out := res.Outcomes["good"]; out.Kind != core.OutcomeSaved {
		t.Fatalf("other camera should be unaffected, got %s", out)
	}
}

func TestRunCycleDirectoryFailureIsPerCamera(t *testing.T) {
	opts, _ := baseOptions(t, core.Camera{ID: "cam-a"}, core.Camera{ID: "cam-b"})
	// um arquivo no lugar do diretório da cam-b
	if err := os.WriteFile(filepath.Join(opts.Resolver.Root(), "cam-b"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	opts.Fetcher = fetchFunc(func(ctx context.Context, a core.AttemptContext, _ time.Duration) core.FetchOutcome {
		calls.Add(1)
		return core.Saved(filepath.Join(a.Dir, "x.jpg"), 1)
	})
	s := mustNew(t, opts)

	res := s.RunCycle(context.Background())
	if res.Outcomes["cam-a"].Kind != core.OutcomeSaved {
		t.Fatalf("cam-a should proceed, got %s", res.Outcomes["cam-a"])
	}
	if res.Outcomes["cam-b"].Kind != core.OutcomeNetworkError {
		t.Fatalf("cam-b should fail on directory, got %s", res.Outcomes["cam-b"])
	}
	if calls.Load() != 1 {
		t.Fatalf("cam-b must not be fetched, calls=%d", calls.Load())
	}
}

func TestShutdownCancelsInFlightFetch(t *testing.T) {
	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hit <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	opts, tr := baseOptions(t, core.Camera{ID: "cam-slow", SnapshotURL: srv.URL})
	opts.Timeout = 30 * time.Second
	s := mustNew(t, opts)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	select {
	case <-hit:
	case <-time.After(2 * time.Second):
		t.Fatalf("request never reached the server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("shutdown took %s", elapsed)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	last, ok := s.LastCycle()
	if !ok || last.Outcomes["cam-slow"].Kind != core.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %+v", last.Outcomes)
	}
	if imgs := imagesUnder(t, opts.Resolver.Root()); len(imgs) != 0 {
		t.Fatalf("no file should be left behind, got %v", imgs)
	}
	if !s.State().Cancelled {
		t.Fatalf("state should be cancelled")
	}

	// idempotente; o client é liberado uma vez só
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if n := tr.closed.Load(); n != 1 {
		t.Fatalf("client released %d times", n)
	}
}

func TestShutdownAbandonsTasksAfterGrace(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{}, 1)

	opts, _ := baseOptions(t, core.Camera{ID: "stuck"})
	opts.Grace = 50 * time.Millisecond
	opts.Fetcher = fetchFunc(func(ctx context.Context, a core.AttemptContext, _ time.Duration) core.FetchOutcome {
		started <- struct{}{}
		<-release // ignora o cancelamento
		return core.Cancelled()
	})
	s := mustNew(t, opts)

	go func() { _ = s.Run(context.Background()) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("grace not bounded, took %s", elapsed)
	}
	last, _ := s.LastCycle()
	if last.Outcomes["stuck"].Kind != core.OutcomeCancelled {
		t.Fatalf("abandoned task should be reported cancelled, got %s", last.Outcomes["stuck"])
	}
}

func TestShutdownBeforeRun(t *testing.T) {
	opts, tr := baseOptions(t, core.Camera{ID: "cam-a"})
	var calls atomic.Int32
	opts.Fetcher = fetchFunc(func(context.Context, core.AttemptContext, time.Duration) core.FetchOutcome {
		calls.Add(1)
		return core.EmptyBody()
	})
	s := mustNew(t, opts)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after earlier Shutdown")
	}
	if calls.Load() != 0 {
		t.Fatalf("no fetch should happen, got %d", calls.Load())
	}
	if tr.closed.Load() != 1 {
		t.Fatalf("client should be released once, got %d", tr.closed.Load())
	}
}

func TestRunRepeatsEveryInterval(t *testing.T) {
	opts, _ := baseOptions(t, core.Camera{ID: "cam-a"})
	opts.Interval = 30 * time.Millisecond
	var calls atomic.Int32
	opts.Fetcher = fetchFunc(func(_ context.Context, a core.AttemptContext, _ time.Duration) core.FetchOutcome {
		calls.Add(1)
		return core.Saved(filepath.Join(a.Dir, "x.jpg"), 1)
	})
	s := mustNew(t, opts)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d cycles ran", calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on context cancel")
	}
	<-s.Done()
}

func TestSleepDuration(t *testing.T) {
	cases := []struct {
		interval, elapsed, want time.Duration
	}{
		{60 * time.Second, 12 * time.Second, 48 * time.Second},
		{60 * time.Second, 0, 60 * time.Second},
		{60 * time.Second, 60 * time.Second, 0},
		{60 * time.Second, 75 * time.Second, 0},
	}
	for _, c := range cases {
		if got := SleepDuration(c.interval, c.elapsed); got != c.want {
			t.Fatalf("SleepDuration(%s, %s) = %s, want %s", c.interval, c.elapsed, got, c.want)
		}
	}
}

func TestNewValidatesOptions(t *testing.T) {
	opts, _ := baseOptions(t, core.Camera{ID: "a"})

	bad := opts
	bad.Cameras = nil
	if _, err := New(bad); err == nil {
		t.Fatalf("expected error without cameras")
	}
	bad = opts
	bad.Interval = 0
	if _, err := New(bad); err == nil {
		t.Fatalf("expected error with zero interval")
	}
	bad = opts
	bad.Client = nil
	if _, err := New(bad); err == nil {
		t.Fatalf("expected error without client")
	}

	opts.Timeout = 10 * time.Second
	opts.Policy = retry.New(3, 5*time.Second)
	s := mustNew(t, opts)
	if s.deadline != 40*time.Second {
		t.Fatalf("expected derived deadline 40s, got %s", s.deadline)
	}
}

var _ fetcher.Fetcher = fetchFunc(nil)

// slowPublisher simula um broker travado.
type slowPublisher struct {
	delay time.Duration
	calls atomic.Int32
}

func (p *slowPublisher) PublishJSON(string, bool, any) error {
	p.calls.Add(1)
	time.Sleep(p.delay)
	return nil
}

func TestShutdownNotDelayedByStalledBroker(t *testing.T) {
	pub := &slowPublisher{delay: 500 * time.Millisecond}
	started := make(chan struct{}, 3)

	opts, _ := baseOptions(t, core.Camera{ID: "cam-a"}, core.Camera{ID: "cam-b"}, core.Camera{ID: "cam-c"})
	opts.Grace = 50 * time.Millisecond
	opts.Reporter = NewStatusReporter(pub, "timelapse/cameras")
	opts.Fetcher = fetchFunc(func(ctx context.Context, a core.AttemptContext, _ time.Duration) core.FetchOutcome {
		started <- struct{}{}
		<-ctx.Done()
		return core.Cancelled()
	})
	s := mustNew(t, opts)

	go func() { _ = s.Run(context.Background()) }()
	for i := 0; i < 3; i++ {
		<-started
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > opts.Grace+400*time.Millisecond {
		t.Fatalf("shutdown took %s with grace %s", elapsed, opts.Grace)
	}
	if n := pub.calls.Load(); n != 0 {
		t.Fatalf("no status should be published during teardown, got %d", n)
	}
}

func TestRunCycleTwoOfThreeSaved(t *testing.T) {
	opts, _ := baseOptions(t, core.Camera{ID: "cam-a"}, core.Camera{ID: "cam-slow"}, core.Camera{ID: "cam-down"})
	const slowest = 200 * time.Millisecond
	var downCalls atomic.Int32
	opts.Fetcher = fetchFunc(func(ctx context.Context, a core.AttemptContext, _ time.Duration) core.FetchOutcome {
		switch a.Camera.ID {
		case "cam-down":
			downCalls.Add(1)
			return core.NetworkError(errors.New("connection refused"))
		case "cam-slow":
			time.Sleep(slowest)
		}
		path := filepath.Join(a.Dir, a.Camera.ID+".jpg")
		if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
			return core.NetworkError(err)
		}
		return core.Saved(path, 3)
	})
	s := mustNew(t, opts)

	res := s.RunCycle(context.Background())

	if res.Count(core.OutcomeSaved) != 2 {
		t.Fatalf("expected 2 saved, got %v", res.Counts())
	}
	if out := res.Outcomes["cam-down"]; out.Kind != core.OutcomeNetworkError {
		t.Fatalf("cam-down: expected network_error, got %s", out)
	}
	if downCalls.Load() != 2 {
		t.Fatalf("cam-down: expected 2 attempts, got %d", downCalls.Load())
	}
	if imgs := imagesUnder(t, opts.Resolver.Root()); len(imgs) != 2 {
		t.Fatalf("expected 2 images, got %v", imgs)
	}
	// ciclo dura o que dura a câmera mais lenta, não a soma
	if res.Duration < slowest {
		t.Fatalf("cycle duration %s shorter than slowest task %s", res.Duration, slowest)
	}
	if res.Duration > slowest+time.Second {
		t.Fatalf("cycle duration %s far above slowest task %s", res.Duration, slowest)
	}
}

func TestNewRejectsNonPositiveTimeout(t *testing.T) {
	opts, _ := baseOptions(t, core.Camera{ID: "a"})
	opts.Timeout = 0
	opts.Policy = retry.New(1, 0)
	if _, err := New(opts); err == nil {
		t.Fatalf("expected error with zero per-attempt timeout")
	}
}

func TestParentCancelMarksStateCancelled(t *testing.T) {
	opts, _ := baseOptions(t, core.Camera{ID: "cam-a"})
	opts.Fetcher = fetchFunc(func(_ context.Context, a core.AttemptContext, _ time.Duration) core.FetchOutcome {
		return core.EmptyBody()
	})
	s := mustNew(t, opts)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := s.LastCycle(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no cycle completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s.State().Cancelled {
		t.Fatalf("state should not be cancelled while running")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !s.State().Cancelled {
		t.Fatalf("state should be cancelled after parent context ends")
	}
}
