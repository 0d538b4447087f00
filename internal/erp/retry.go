package erp

import (
	"context"
	"encoding/json"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/pkg/logger"
)

// Retrying wraps an Invoker with a bounded retry loop for best-effort reads
// (catalog warm-up, listings). Orchestration phases must not use it: a
// replayed create can duplicate a container.
type Retrying struct {
	next    Invoker
	retries int
	backoff time.Duration
}

// NewRetrying returns an Invoker that retries failed calls up to retries
// times, sleeping backoff*attempt between attempts.
func NewRetrying(next Invoker, retries int, backoff time.Duration) *Retrying {
	if retries < 0 {
		retries = 0
	}
	return &Retrying{next: next, retries: retries, backoff: backoff}
}

// Invoke implements Invoker.
// Rejections by the ERP are returned immediately; only timeouts and
// transport-level failures are retried.
func (r *Retrying) Invoke(ctx context.Context, call Call) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			wait := r.backoff * time.Duration(attempt)
			logger.Debug(ctx, "retrying remote call", "call", call.String(), "attempt", attempt, "wait", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		raw, err := r.next.Invoke(ctx, call)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		return true
	}
	switch appErr.Code {
	case apperror.CodeTimeout:
		return true
	case apperror.CodeRemote:
		return appErr.Details["transport"] == true
	default:
		return false
	}
}
