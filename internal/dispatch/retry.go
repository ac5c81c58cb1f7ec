package dispatch

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cadencehq/cadence/pkg/schema"
)

// IsRetryableError classifies whether a failed delivery should be retried.
// Retryable by default: network errors, timeouts, transient transport faults.
// Non-retryable: validation errors, missing leads, cancelled contexts.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Context cancelled is NOT retryable: the dispatcher is shutting down.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var engineErr *schema.EngineError
	if errors.As(err, &engineErr) {
		return engineErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String heuristics for common retryable patterns.
	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"internal server error",
		"too many requests",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	// Default: retryable. The attempt cap bounds the damage.
	return true
}

// ComputeBackoff calculates the redelivery delay for the given attempt
// count: exponential from the base delay, capped at maxDelay.
func ComputeBackoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}
