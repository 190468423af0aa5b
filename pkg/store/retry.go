package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"memodb/pkg/errs"
	"memodb/pkg/logger"
)

const (
	retryAttempts = 3
	retryBaseWait = 25 * time.Millisecond
)

// withRetry runs fn with bounded exponential backoff. Pebble I/O failures
// surface as ErrStorageUnavailable once attempts are exhausted; missing
// keys are never retried.
func withRetry(op string, fn func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, pebble.ErrNotFound) {
			return errs.ErrNotFound
		}
		if attempt < retryAttempts {
			logger.Log.Warn("storage_retry",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			storageRetries.Inc()
			time.Sleep(wait)
			wait *= 2
		}
	}
	logger.Log.Error("storage_unavailable", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s failed after %d attempts: %w (%v)", op, retryAttempts, errs.ErrStorageUnavailable, err)
}
