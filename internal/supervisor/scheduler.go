// internal/supervisor/scheduler.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/fetcher"
	"github.com/sua-org/cam-timelapse/internal/layout"
	"github.com/sua-org/cam-timelapse/internal/metrics"
	"github.com/sua-org/cam-timelapse/internal/retry"
	"github.com/sua-org/cam-timelapse/internal/sinks"
)

var ErrAlreadyRunning = errors.New("scheduler already running")

type Options struct {
	Cameras  []core.Camera
	Interval time.Duration

	// Timeout vale por tentativa; Deadline para a busca lógica inteira
	// (zero = todas as tentativas mais os atrasos).
	Timeout  time.Duration
	Deadline time.Duration
	Grace    time.Duration
	Policy   retry.Policy

	Resolver *layout.Resolver
	Client   *http.Client

	// opcionais
	Fetcher  fetcher.Fetcher
	Sinks    *sinks.Manager
	Metrics  *metrics.Metrics
	Reporter *StatusReporter
	Logger   *slog.Logger
}

// Scheduler dispara, a cada intervalo, uma busca por câmera em paralelo
// e espera todas antes de dormir até o próximo ciclo.
type Scheduler struct {
	cameras  []core.Camera
	interval time.Duration
	deadline time.Duration
	grace    time.Duration

	resolver *layout.Resolver
	client   *http.Client
	task     *fetcher.Task
	sinks    *sinks.Manager
	metrics  *metrics.Metrics
	reporter *StatusReporter
	log      *slog.Logger

	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	inFlight   map[string]time.Time
	cycleStart time.Time
	last       *core.CycleResult

	cancelled   atomic.Bool
	done        chan struct{}
	releaseOnce sync.Once
}

func New(opts Options) (*Scheduler, error) {
	if len(opts.Cameras) == 0 {
		return nil, fmt.Errorf("no cameras configured")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("directory resolver is required")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("per-attempt timeout must be positive")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if opts.Policy.MaxAttempts < 1 {
		opts.Policy = retry.New(opts.Policy.MaxAttempts, opts.Policy.Delay)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f := opts.Fetcher
	if f == nil {
		f = fetcher.NewImageFetcher(opts.Client, logger)
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		n := time.Duration(opts.Policy.MaxAttempts)
		deadline = n*opts.Timeout + (n-1)*opts.Policy.Delay
	}

	return &Scheduler{
		cameras:  opts.Cameras,
		interval: opts.Interval,
		deadline: deadline,
		grace:    opts.Grace,
		resolver: opts.Resolver,
		client:   opts.Client,
		task:     fetcher.NewTask(f, opts.Policy, opts.Timeout, opts.Metrics, logger),
		sinks:    opts.Sinks,
		metrics:  opts.Metrics,
		reporter: opts.Reporter,
		log:      logger.With("component", "scheduler"),
		inFlight: make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// SleepDuration é max(0, interval - elapsed): ciclo que estoura o
// intervalo emenda direto no próximo, sem tentar compensar o atraso.
func SleepDuration(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

// Run roda ciclos até ctx ser cancelado ou Shutdown ser chamado. Antes de
// retornar cancela as buscas em andamento, espera no máximo o grace e
// libera o client HTTP.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if s.cancelled.Load() {
		cancel()
	}
	s.mu.Unlock()
	defer s.teardown()

	s.log.Info("scheduler started",
		"cameras", len(s.cameras),
		"interval", s.interval,
		"task_deadline", s.deadline,
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		res := s.RunCycle(ctx)
		elapsed := time.Since(start)

		if ctx.Err() != nil {
			return nil
		}

		sleep := SleepDuration(s.interval, elapsed)
		if sleep == 0 {
			s.log.Warn("cycle overran interval", "cycle", res.ID, "elapsed", elapsed, "interval", s.interval)
		} else {
			s.log.Debug("sleeping until next cycle", "sleep", sleep)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle faz um ciclo completo: garante os diretórios, dispara uma
// busca por câmera e espera todas.
func (s *Scheduler) RunCycle(ctx context.Context) core.CycleResult {
	start := time.Now()
	s.mu.Lock()
	s.cycleStart = start
	s.mu.Unlock()

	res := core.CycleResult{
		ID:        uuid.NewString(),
		StartedAt: start,
		Outcomes:  make(map[string]core.FetchOutcome, len(s.cameras)),
	}
	s.log.Debug("cycle started", "cycle", res.ID)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	results := make(map[string]core.FetchOutcome, len(s.cameras))

	for _, cam := range s.cameras {
		if ctx.Err() != nil {
			break
		}
		dir, err := s.resolver.EnsureDirectoryFor(cam.ID, start)
		if err != nil {
			s.log.Error("cannot prepare output directory", "camera", cam.ID, "err", err)
			out := core.NetworkError(fmt.Errorf("ensure directory: %w", err))
			s.metrics.ObserveFetch(cam.ID, out, false)
			mu.Lock()
			results[cam.ID] = out
			mu.Unlock()
			continue
		}

		wg.Add(1)
		s.trackStart(cam.ID)
		go func(cam core.Camera, dir string) {
			defer wg.Done()
			defer s.trackDone(cam.ID)
			out := s.runCamera(ctx, cam, dir)
			mu.Lock()
			results[cam.ID] = out
			mu.Unlock()
		}(cam, dir)
	}

	s.waitAll(ctx, &wg)

	mu.Lock()
	for _, cam := range s.cameras {
		out, ok := results[cam.ID]
		if !ok {
			// não disparada ou abandonada depois do grace
			out = core.Cancelled()
		}
		res.Outcomes[cam.ID] = out
	}
	mu.Unlock()
	res.Duration = time.Since(start)

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	s.metrics.ObserveCycle(res.Duration)
	counts := res.Counts()
	s.log.Info("cycle finished",
		"cycle", res.ID,
		"duration", res.Duration.Round(time.Millisecond),
		"saved", counts[core.OutcomeSaved],
		"failed", len(res.Outcomes)-counts[core.OutcomeSaved]-counts[core.OutcomeCancelled],
		"cancelled", counts[core.OutcomeCancelled],
	)
	s.reporter.Report(ctx, res)
	return res
}

// waitAll espera todas as buscas; depois de um cancelamento espera no
// máximo s.grace e abandona o que sobrou.
func (s *Scheduler) waitAll(ctx context.Context, wg *sync.WaitGroup) {
	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
		return
	case <-ctx.Done():
	}

	grace := time.NewTimer(s.grace)
	defer grace.Stop()
	select {
	case <-allDone:
	case <-grace.C:
		s.log.Warn("shutdown grace elapsed, abandoning tasks", "in_flight", s.InFlight())
	}
}

func (s *Scheduler) runCamera(ctx context.Context, cam core.Camera, dir string) (out core.FetchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in camera task", "camera", cam.ID, "panic", r, "stack", string(debug.Stack()))
			out = core.NetworkError(fmt.Errorf("panic in camera task: %v", r))
			s.metrics.ObserveFetch(cam.ID, out, false)
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	out = s.task.Run(tctx, cam, dir)
	if out.Kind == core.OutcomeSaved {
		s.dispatch(ctx, cam, out)
	}
	return out
}

func (s *Scheduler) dispatch(ctx context.Context, cam core.Camera, out core.FetchOutcome) {
	if !s.sinks.Enabled() {
		return
	}
	key, err := s.resolver.KeyFor(out.Path)
	if err != nil {
		s.log.Warn("cannot derive object key", "camera", cam.ID, "path", out.Path, "err", err)
		return
	}
	_ = s.sinks.Dispatch(ctx, core.Snapshot{
		Camera:  cam.ID,
		Path:    out.Path,
		Key:     key,
		Size:    out.Bytes,
		TakenAt: time.Now(),
	})
}

// Shutdown pede o encerramento e espera o teardown terminar ou ctx
// vencer. Pode ser chamado várias vezes, de qualquer goroutine.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if s.cancelled.CompareAndSwap(false, true) {
		s.log.Info("shutdown requested")
	}

	s.mu.Lock()
	started, cancel := s.started, s.cancel
	s.mu.Unlock()

	if !started {
		s.releaseClient()
		return nil
	}
	if cancel != nil {
		cancel()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done fecha quando Run terminou o teardown.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) teardown() {
	s.cancelled.Store(true)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.releaseClient()
	s.log.Info("scheduler stopped")
	close(s.done)
}

func (s *Scheduler) releaseClient() {
	s.releaseOnce.Do(func() {
		s.client.CloseIdleConnections()
	})
}
