package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retryer repeatedly invokes a probe function with exponentially growing
// delays between attempts until the probe succeeds or the overall timeout
// elapses. It knows nothing about what the probe does.
type Retryer struct {
	// WaitMin is the delay before the second attempt. Subsequent delays
	// double until capped at WaitMax.
	WaitMin time.Duration
	WaitMax time.Duration
	// Timeout bounds the whole call to Do. It is checked between attempts;
	// an in-flight probe is never interrupted, so Do can overrun Timeout by
	// at most one probe's duration.
	Timeout time.Duration

	// RetryOn decides whether a probe error is worth another attempt.
	// Nil retries every error.
	RetryOn func(error) bool

	// Log receives per-attempt failures. Nil falls back to slog.Default().
	Log *slog.Logger
}

// NewExponential returns a Retryer with the given backoff window and
// overall timeout.
func NewExponential(waitMin, waitMax, timeout time.Duration) *Retryer {
	return &Retryer{
		WaitMin: waitMin,
		WaitMax: waitMax,
		Timeout: timeout,
	}
}

// ExhaustedError reports that the overall timeout elapsed before any
// attempt succeeded. It wraps the error from the last attempt only;
// earlier failures are logged, not accumulated.
type ExhaustedError struct {
	Attempts int
	Timeout  time.Duration
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry budget %v exhausted after %d attempts: %v",
		e.Timeout, e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Do invokes probe until it returns nil. The first attempt runs
// immediately. A probe error that RetryOn rejects is returned as-is.
// On timeout Do returns an *ExhaustedError wrapping the last probe error.
// Cancelling ctx stops the loop between attempts.
func (r *Retryer) Do(ctx context.Context, probe func(context.Context) error) error {
	deadline := time.Now().Add(r.Timeout)

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = probe(ctx)
		if lastErr == nil {
			return nil
		}
		if r.RetryOn != nil && !r.RetryOn(lastErr) {
			return lastErr
		}
		r.logger().Debug("probe attempt failed",
			"attempt", attempt+1,
			"error", lastErr)

		delay := r.delay(attempt)
		// Stop rather than sleep into (or past) the deadline: the next
		// probe must start before the overall timeout elapses.
		if !time.Now().Add(delay).Before(deadline) {
			return &ExhaustedError{
				Attempts: attempt + 1,
				Timeout:  r.Timeout,
				LastErr:  lastErr,
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// delay returns min(WaitMin * 2^attempt, WaitMax).
func (r *Retryer) delay(attempt int) time.Duration {
	d := r.WaitMin
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= r.WaitMax {
			return r.WaitMax
		}
	}
	if d > r.WaitMax {
		return r.WaitMax
	}
	return d
}

func (r *Retryer) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
