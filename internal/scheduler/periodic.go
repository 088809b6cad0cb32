package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NextRun returns the first slot prev + k*interval (k >= 1) strictly after
// now. Slots missed while a run overran are skipped.
func NextRun(prev time.Time, interval time.Duration, now time.Time) time.Time {
	next := prev.Add(interval)
	if next.After(now) {
		return next
	}
	missed := now.Sub(prev) / interval
	return prev.Add((missed + 1) * interval)
}

// Every runs job immediately and then on every interval slot until ctx is
// done. The next run is scheduled only after the previous one returns, so
// runs never overlap.
func Every(ctx context.Context, s *Scheduler, id string, interval time.Duration, job func(context.Context), logger *zap.Logger) error {
	var tick func(slot time.Time)
	tick = func(slot time.Time) {
		if ctx.Err() != nil {
			return
		}

		job(ctx)

		next := NextRun(slot, interval, time.Now())
		if err := s.Schedule(id, next, func() { tick(next) }); err != nil {
			logger.Debug("Periodic job not rescheduled", zap.String("job", id), zap.Error(err))
			return
		}
		logger.Debug("Scheduled next run", zap.String("job", id), zap.Time("at", next))
	}

	now := time.Now()
	return s.Schedule(id, now, func() { tick(now) })
}
