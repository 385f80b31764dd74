// Package retry provides a fixed-backoff retry executor for fallible
// operations: outbound calls to collaborators and page navigation.
// Uniform fixed delay, no jitter.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Defaults shared by the callers of Do.
const (
	// OutboundDelay is the fixed wait between attempts of outbound calls
	// (completion service, chat front-end).
	OutboundDelay = 2 * time.Second

	// NavigationDelay is the fixed wait between page navigation attempts.
	NavigationDelay = 5 * time.Second

	// NavigationAttempts is the bounded attempt count for navigation.
	NavigationAttempts = 3
)

// Do invokes op up to attempts times. On any failure before the final attempt
// it waits the fixed delay, then retries; on exhaustion it returns the last
// failure wrapped with the attempt count. The delay sleep is context-aware so
// a cancelled caller is released immediately.
func Do(ctx context.Context, attempts int, delay time.Duration, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < attempts {
			slog.Debug("retry: attempt failed, backing off",
				"attempt", attempt,
				"attempts", attempts,
				"delay", delay,
				"error", lastErr,
			)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("retry: exhausted %d attempts: %w", attempts, lastErr)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
