package extraction

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
)

// RetryStrategy defines exponential backoff retry logic for extraction calls
type RetryStrategy struct {
	MaxAttempts int           // Default: 3
	BaseBackoff time.Duration // Default: 1 second
	MaxBackoff  time.Duration // Default: 8 seconds
	Jitter      bool          // Default: true
}

// NewRetryStrategy creates a new RetryStrategy with defaults
func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  8 * time.Second,
		Jitter:      true,
	}
}

// CalculateBackoff returns the wait before the next attempt: 1s, 2s, 4s, 8s...
func (s *RetryStrategy) CalculateBackoff(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseBackoff
	}

	multiplier := math.Pow(2, float64(attemptNumber-1))
	backoff := time.Duration(multiplier) * s.BaseBackoff

	if backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.Jitter {
		// ±10% of backoff
		jitterRange := backoff / 10
		if jitterRange > 0 {
			jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
			backoff = backoff + jitter
			if backoff < s.BaseBackoff {
				backoff = s.BaseBackoff
			}
		}
	}

	return backoff
}

// ShouldRetry decides whether a failed attempt is worth repeating. Parent
// cancellation and permanent client errors stop immediately; transport
// failures, throttling, server errors, per-call timeouts and unusable model
// output are retried.
func (s *RetryStrategy) ShouldRetry(parent context.Context, err error) bool {
	if err == nil || parent.Err() != nil {
		return false
	}

	if errors.Is(err, entity.ErrEmptyResponse) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var schemaErr *entity.SchemaError
	if errors.As(err, &schemaErr) {
		return true
	}

	var svcErr *port.ServiceError
	if errors.As(err, &svcErr) {
		// No status means the request never got an answer
		if svcErr.StatusCode == 0 {
			return true
		}
		return s.IsRetryableStatusCode(svcErr.StatusCode)
	}

	return isTransportError(err)
}

// isTransportError reports network failures that happened before any answer arrived
func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// IsRetryableStatusCode determines if HTTP status warrants retry
func (s *RetryStrategy) IsRetryableStatusCode(statusCode int) bool {
	// Permanent errors: 4xx except 429
	if statusCode >= 400 && statusCode < 500 {
		return statusCode == 429
	}

	return statusCode >= 500 && statusCode < 600
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
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
