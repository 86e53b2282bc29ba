// Package schedule triggers recurring scrape runs. The concrete slot is
// randomized once per process: a weekday plus an hour inside the configured
// window, so repeated deployments do not hammer the source at a fixed time.
package schedule

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/config"
)

// Job is the work a Scheduler triggers.
type Job func(ctx context.Context) error

// Scheduler fires a Job once per week at a fixed slot.
type Scheduler struct {
	weekday time.Weekday
	hour    int
	minute  int
	job     Job
	clock   clockwork.Clock
	logger  *zap.Logger
}

// New picks a random weekly slot within the configured hour window.
func New(cfg config.ScheduleConfig, job Job, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	weekday := time.Weekday(randInt(7))
	hour := cfg.WindowStartHour + randInt(cfg.WindowEndHour-cfg.WindowStartHour+1)
	minute := randInt(60)
	return NewAt(weekday, hour, minute, job, clock, logger)
}

// NewAt builds a Scheduler with an explicit slot.
func NewAt(weekday time.Weekday, hour, minute int, job Job, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Scheduler{
		weekday: weekday,
		hour:    hour,
		minute:  minute,
		job:     job,
		clock:   clock,
		logger:  logger,
	}
	logger.Info("scrape schedule selected",
		zap.String("weekday", weekday.String()),
		zap.Int("hour", hour),
		zap.Int("minute", minute))
	return s
}

// Next returns the first occurrence of the slot strictly after the given time.
func (s *Scheduler) Next(after time.Time) time.Time {
	t := time.Date(after.Year(), after.Month(), after.Day(), s.hour, s.minute, 0, 0, after.Location())
	days := (int(s.weekday) - int(t.Weekday()) + 7) % 7
	t = t.AddDate(0, 0, days)
	if !t.After(after) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}

// Run blocks, firing the job at each slot until the context is canceled.
// Job failures are logged and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.clock.Now()
		next := s.Next(now)
		s.logger.Info("next scrape scheduled", zap.Time("at", next))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(next.Sub(now)):
		}
		if err := s.job(ctx); err != nil {
			s.logger.Error("scheduled scrape failed", zap.Error(err))
		}
	}
}

func randInt(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
