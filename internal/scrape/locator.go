package scrape

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Locator is the single retry primitive for structural lookups in a
// dynamically rendered page. Every selector wait in both crawl phases goes
// through it.
type Locator struct {
	pauseMin time.Duration
	pauseMax time.Duration
	logger   *zap.Logger
}

// NewLocator builds a Locator with the given jittered inter-attempt pause.
func NewLocator(pauseMin, pauseMax time.Duration, logger *zap.Logger) Locator {
	return Locator{pauseMin: pauseMin, pauseMax: pauseMax, logger: logger}
}

// WaitFor waits for the selector to become visible, retrying up to attempts
// times with a jittered pause between attempts. It returns (false, nil) when
// every attempt timed out; the caller decides how to degrade. Errors other
// than a per-attempt timeout (session loss, cancellation) are returned as-is.
func (l Locator) WaitFor(ctx context.Context, page Page, selector string, attempts int, timeout time.Duration) (bool, error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		err := page.WaitVisible(ctx, selector, timeout)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		if attempt < attempts {
			l.logger.Debug("element not yet visible, retrying",
				zap.String("selector", selector),
				zap.Int("attempt", attempt+1),
				zap.Int("attempts", attempts),
			)
			Pause(ctx, l.pauseMin, l.pauseMax)
		}
	}
	l.logger.Debug("element not found after all attempts",
		zap.String("selector", selector),
		zap.Int("attempts", attempts),
	)
	return false, nil
}
