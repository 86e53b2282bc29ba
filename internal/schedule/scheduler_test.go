package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/config"
)

func TestNextComputesUpcomingSlot(t *testing.T) {
	s := NewAt(time.Tuesday, 3, 30, nil, clockwork.NewRealClock(), zap.NewNop())

	// Monday before the slot.
	after := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	next := s.Next(after)
	assert.Equal(t, time.Date(2026, time.March, 10, 3, 30, 0, 0, time.UTC), next)

	// Exactly at the slot rolls a full week forward.
	next = s.Next(next)
	assert.Equal(t, time.Date(2026, time.March, 17, 3, 30, 0, 0, time.UTC), next)

	// Tuesday after the slot also rolls forward.
	after = time.Date(2026, time.March, 10, 4, 0, 0, 0, time.UTC)
	next = s.Next(after)
	assert.Equal(t, time.Date(2026, time.March, 17, 3, 30, 0, 0, time.UTC), next)
}

func TestRunFiresJobAtSlot(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC))
	var fired atomic.Int32
	s := NewAt(time.Tuesday, 3, 30, func(ctx context.Context) error {
		fired.Add(1)
		return nil
	}, fakeClock, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Wait for the scheduler to park on the timer, then jump past the slot.
	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	fakeClock.Advance(16 * time.Hour)

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunContinuesAfterJobFailure(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC))
	var fired atomic.Int32
	s := NewAt(time.Tuesday, 3, 30, func(ctx context.Context) error {
		fired.Add(1)
		return errors.New("scrape failed")
	}, fakeClock, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	fakeClock.Advance(16 * time.Hour)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The loop re-arms for the following week despite the failure.
	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	fakeClock.Advance(7 * 24 * time.Hour)
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestNewPicksSlotInsideWindow(t *testing.T) {
	cfg := config.ScheduleConfig{WindowStartHour: 2, WindowEndHour: 5}
	for i := 0; i < 20; i++ {
		s := New(cfg, nil, clockwork.NewRealClock(), zap.NewNop())
		assert.GreaterOrEqual(t, s.hour, 2)
		assert.LessOrEqual(t, s.hour, 5)
		assert.GreaterOrEqual(t, s.minute, 0)
		assert.Less(t, s.minute, 60)
	}
}
