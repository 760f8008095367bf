package content

import (
	"context"
	"math"
	"time"

	"github.com/s0up4200/strapcache/config"
)

// maxBackoffShift caps the exponent so the shift cannot overflow
const maxBackoffShift = 30

// backoff returns base * 2^attempt
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	shift := min(attempt, maxBackoffShift)
	if base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

// withRetry runs fn until it succeeds, fails terminally, or MaxRetries retries are spent
func (c *Client) withRetry(ctx context.Context, cfg config.ClientConfig, method, endpoint string, fn func(attempt int) *Error) error {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 0 && cfg.Debug {
				c.logger.Debug().
					Str("method", method).
					Str("endpoint", endpoint).
					Int("attempts", attempt+1).
					Dur("elapsed", time.Since(start)).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		// With no retry budget the first failure is returned as is, never as exhausted
		if !IsRetriable(err) || ctx.Err() != nil || cfg.MaxRetries == 0 {
			c.metrics.RecordError(string(err.Kind), false)
			return err
		}

		if attempt >= cfg.MaxRetries {
			exhausted := exhaustedError(err, attempt+1)
			c.metrics.RecordError(string(err.Kind), true)
			c.logger.Warn().
				Str("method", method).
				Str("endpoint", endpoint).
				Str("kind", string(err.Kind)).
				Int("attempts", attempt+1).
				Dur("elapsed", time.Since(start)).
				Msg("Giving up on request")
			return exhausted
		}

		delay := backoff(cfg.RetryDelay, attempt)
		c.metrics.RecordRetry(method, endpoint, attempt+1)
		if cfg.Debug {
			c.logger.Debug().
				Str("method", method).
				Str("endpoint", endpoint).
				Str("kind", string(err.Kind)).
				Int("status", err.StatusCode).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Dur("elapsed", time.Since(start)).
				Msg("Retrying request")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
