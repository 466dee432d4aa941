package retry

import (
	"errors"

	errs "tootsync/pkg/errors"
	"tootsync/pkg/logger"
)

// Operation is a rate-limited call that returns a result.
type Operation[T any] func() (T, error)

// OnRateLimit runs op, and if it fails with a RateLimitError, waits out the
// server-supplied reset and retries exactly once. Any other error, and a
// second consecutive rate limit, propagate unchanged.
//
// Every call site that issues a rate-limited request goes through this
// wrapper; the single-retry budget is per call, not per run.
func OnRateLimit[T any](log logger.Logger, op Operation[T]) (T, error) {
	result, err := op()
	if err == nil {
		return result, nil
	}

	var rle *errs.RateLimitError
	if !errors.As(err, &rle) {
		return result, err
	}

	if log != nil {
		log.WarnWithFields("rate limit exceeded, waiting for reset", map[string]interface{}{
			"reset": rle.Reset,
		})
	}
	rle.Wait()

	return op()
}
