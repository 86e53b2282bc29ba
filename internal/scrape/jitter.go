package scrape

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Jitter returns a random duration in [min, max). Randomized pacing avoids
// the mechanical request timing that gets automated clients flagged.
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	spread := big.NewInt(int64(max - min))
	n, err := rand.Int(rand.Reader, spread)
	if err != nil {
		return min + (max-min)/2
	}
	return min + time.Duration(n.Int64())
}

// Pause sleeps for a jittered duration in [min, max), returning early if the
// context finishes first.
func Pause(ctx context.Context, min, max time.Duration) {
	delay := Jitter(min, max)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
