// internal/fetcher/task.go
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/metrics"
	"github.com/sua-org/cam-timelapse/internal/retry"
)

// Task executa a busca lógica de uma câmera num ciclo: tentativas
// 1..MaxAttempts com o atraso constante da política entre elas.
type Task struct {
	fetcher Fetcher
	policy  retry.Policy
	timeout time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewTask(f Fetcher, policy retry.Policy, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		fetcher: f,
		policy:  policy,
		timeout: timeout,
		metrics: m,
		log:     logger.With("component", "task"),
	}
}

// Run devolve o outcome final da câmera. ctx carrega o prazo total da
// busca; quando ele vence durante o atraso entre tentativas, o último
// outcome recuperável é devolvido como está.
func (t *Task) Run(ctx context.Context, cam core.Camera, dir string) core.FetchOutcome {
	deadline, _ := ctx.Deadline()
	var last core.FetchOutcome

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) || attempt == 1 {
				out := classify(ctx, ctx, err)
				t.finish(cam, out, false)
				return out
			}
			t.giveUp(cam, attempt-1, last)
			return last
		}

		ac := core.AttemptContext{Camera: cam, Number: attempt, Dir: dir, Deadline: deadline}
		out := t.fetcher.Fetch(ctx, ac, t.timeout)
		t.logAttempt(ac, out)
		t.metrics.ObserveAttempt(cam.ID, out)
		last = out

		if !t.policy.ShouldRetry(attempt, out) {
			if retry.Retryable(out) {
				t.giveUp(cam, attempt, out)
				return out
			}
			t.finish(cam, out, false)
			return out
		}

		if err := sleepCtx(ctx, t.policy.DelayBeforeNextAttempt()); err != nil {
			if errors.Is(err, context.Canceled) {
				t.log.Info("retry delay interrupted", "camera", cam.ID, "attempt", attempt)
				c := core.Cancelled()
				t.finish(cam, c, false)
				return c
			}
			t.giveUp(cam, attempt, last)
			return last
		}
	}
}

func (t *Task) finish(cam core.Camera, out core.FetchOutcome, exhausted bool) {
	t.metrics.ObserveFetch(cam.ID, out, exhausted)
}

func (t *Task) giveUp(cam core.Camera, attempts int, last core.FetchOutcome) {
	t.log.Error("giving up on camera for this cycle",
		"camera", cam.ID,
		"attempts", attempts,
		"last", last.String(),
	)
	t.finish(cam, last, true)
}

func (t *Task) logAttempt(ac core.AttemptContext, out core.FetchOutcome) {
	attrs := []any{"camera", ac.Camera.ID, "attempt", ac.Number}
	switch out.Kind {
	case core.OutcomeSaved:
		t.log.Info("snapshot saved", append(attrs, "path", out.Path, "bytes", out.Bytes)...)
	case core.OutcomeEmptyBody:
		t.log.Warn("empty snapshot body", attrs...)
	case core.OutcomeHTTPError:
		t.log.Warn("unexpected http status", append(attrs, "status", out.StatusCode)...)
	case core.OutcomeNetworkError:
		t.log.Error("network error", append(attrs, "err", out.Err)...)
	case core.OutcomeTimeout:
		t.log.Error("snapshot request timed out", append(attrs, "err", out.Err)...)
	case core.OutcomeCancelled:
		t.log.Info("snapshot request cancelled", attrs...)
	}
}

// sleepCtx espera d ou até ctx terminar; devolve ctx.Err() no segundo caso.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
