// Package schedule re-runs a job on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a Job at every tick of a cron expression. Runs never
// overlap: a tick that passes while the job is running is skipped.
type Scheduler struct {
	expr   string
	job    Job
	logger zerolog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New validates expr and creates a scheduler.
func New(expr string, job Job) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression: %q", expr)
	}
	return &Scheduler{
		expr:   expr,
		job:    job,
		logger: log.With().Str("component", "schedule").Logger(),
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

// Run blocks until ctx is cancelled, running the job at every tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Str("cron", s.expr).Msg("Scheduler started")
	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("Scheduler stopping")
			return
		}

		next, err := s.Next(s.now())
		if err != nil {
			s.logger.Error().Err(err).Str("cron", s.expr).Msg("Failed to compute next tick")
			select {
			case <-s.after(30 * time.Second):
				continue
			case <-ctx.Done():
				s.logger.Info().Msg("Scheduler stopping")
				return
			}
		}

		wait := max(next.Sub(s.now()), 0)
		s.logger.Debug().Time("next", next).Dur("wait", wait).Msg("Waiting for next tick")

		select {
		case <-s.after(wait):
			start := time.Now()
			if err := s.job(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled run failed")
			} else {
				s.logger.Info().Dur("duration", time.Since(start)).Msg("Scheduled run completed")
			}
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopping")
			return
		}
	}
}
