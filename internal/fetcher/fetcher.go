// internal/fetcher/fetcher.go
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/drivers"
)

// Fetcher faz UMA tentativa de buscar o snapshot de uma câmera.
type Fetcher interface {
	Fetch(ctx context.Context, attempt core.AttemptContext, timeout time.Duration) core.FetchOutcome
}

// ImageFetcher usa o driver do fabricante e grava o corpo da resposta em
// <dir>/<camera>_<unix>.jpg. O client é compartilhado e nunca reconfigurado aqui.
type ImageFetcher struct {
	client *http.Client
	now    func() time.Time
	log    *slog.Logger
}

func NewImageFetcher(client *http.Client, logger *slog.Logger) *ImageFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageFetcher{
		client: client,
		now:    time.Now,
		log:    logger.With("component", "fetcher"),
	}
}

// FileName é o nome determinístico da imagem: mesma câmera no mesmo
// segundo gera o mesmo nome, e a gravação mais recente vence.
func FileName(camera string, t time.Time) string {
	return fmt.Sprintf("%s_%d.jpg", camera, t.Unix())
}

func (f *ImageFetcher) Fetch(ctx context.Context, attempt core.AttemptContext, timeout time.Duration) core.FetchOutcome {
	if err := ctx.Err(); err != nil {
		return classify(ctx, ctx, err)
	}

	drv, err := drivers.GetDriver(attempt.Camera)
	if err != nil {
		return core.NetworkError(fmt.Errorf("resolve driver: %w", err))
	}

	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	f.log.Debug("requesting snapshot",
		"camera", attempt.Camera.ID,
		"attempt", attempt.Number,
		"url", drv.SnapshotURL(),
	)

	resp, err := drv.Fetch(reqCtx, f.client)
	if err != nil {
		return classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return core.HTTPError(resp.StatusCode)
	}

	return f.save(ctx, reqCtx, attempt, resp.Body)
}

// save grava num arquivo temporário no mesmo diretório e só renomeia para
// o nome final quando o corpo chegou inteiro. Em qualquer falha o
// temporário é removido, então nunca sobra JPEG truncado.
func (f *ImageFetcher) save(ctx, reqCtx context.Context, attempt core.AttemptContext, body io.Reader) core.FetchOutcome {
	tmp, err := os.CreateTemp(attempt.Dir, "."+attempt.Camera.ID+"_*.part")
	if err != nil {
		return core.NetworkError(fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	n, err := io.Copy(tmp, body)
	if err != nil {
		discard()
		return classify(ctx, reqCtx, err)
	}
	if n == 0 {
		discard()
		return core.EmptyBody()
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		discard()
		return core.Cancelled()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return core.NetworkError(fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return core.NetworkError(fmt.Errorf("chmod temp file: %w", err))
	}

	final := filepath.Join(attempt.Dir, FileName(attempt.Camera.ID, f.now()))
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return core.NetworkError(fmt.Errorf("rename %s: %w", final, err))
	}
	return core.Saved(final, n)
}

// classify separa cancelamento externo, estouro de tempo e erro de rede.
// parent é o contexto da busca; reqCtx é o da requisição com timeout.
func classify(parent, reqCtx context.Context, err error) core.FetchOutcome {
	if errors.Is(parent.Err(), context.Canceled) {
		return core.Cancelled()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return core.Timeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.Timeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return core.Cancelled()
	}
	return core.NetworkError(err)
}
