// internal/retry/policy.go
package retry

import (
	"time"

	"github.com/sua-org/cam-timelapse/internal/core"
)

// Policy decide se uma busca lógica tenta de novo e quanto espera antes.
//
// MaxAttempts conta tentativas no total, não retries depois da primeira:
// com MaxAttempts=3 acontecem no máximo 3 requisições.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

func New(maxAttempts int, delay time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return Policy{MaxAttempts: maxAttempts, Delay: delay}
}

// ShouldRetry recebe o número da tentativa que acabou (1-based) e o outcome dela.
func (p Policy) ShouldRetry(attempt int, outcome core.FetchOutcome) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return Retryable(outcome)
}

// DelayBeforeNextAttempt é constante.
func (p Policy) DelayBeforeNextAttempt() time.Duration {
	return p.Delay
}

// Retryable diz se a variante, por si só, justifica outra tentativa.
// Qualquer status diferente de 200 conta como falha recuperável.
func Retryable(outcome core.FetchOutcome) bool {
	switch outcome.Kind {
	case core.OutcomeNetworkError, core.OutcomeTimeout, core.OutcomeHTTPError:
		return true
	default:
		return false
	}
}
