package sources

import (
	"context"
	"errors"
	"time"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// errSourceFailed is the sentinel fed to the breaker when a call produced
// a failure result that should count toward tripping.
var errSourceFailed = errors.New("source call failed")

// Execute runs one adapter call through its breaker with its own timeout.
// It always returns a SourceResult; panics and errors are folded into the
// failure taxonomy. This is the only path the orchestrator uses to invoke
// a source.
func Execute(ctx context.Context, src Source, domain string, hints Hints) *SourceResult {
	start := time.Now()
	var res *SourceResult

	err := src.Breaker().Call(func() error {
		callCtx, cancel := context.WithTimeout(ctx, src.Timeout())
		defer cancel()

		r, err := src.Enrich(callCtx, domain, hints)
		if err != nil {
			// Adapter broke its contract (or ctx was cancelled); classify.
			kind := ErrNetwork
			if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
				kind = ErrTimeout
			}
			res = Failed(kind, err.Error(), src.CostEstimate(), time.Since(start))
			return errSourceFailed
		}
		res = r
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}
		if IsBreakerFailure(res) {
			return errSourceFailed
		}
		return nil
	})

	if errors.Is(err, breaker.ErrOpen) {
		return Failed(ErrBreakerOpen, "circuit breaker open", 0, time.Since(start))
	}
	if res == nil {
		res = Failed(ErrNetwork, "source returned no result", 0, time.Since(start))
	}
	return res
}
