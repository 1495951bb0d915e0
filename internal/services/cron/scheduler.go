package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vpanel/internal/models"
	"vpanel/internal/services/schedule"
)

// Dispatcher hands a claimed job off for asynchronous execution.
type Dispatcher interface {
	Dispatch(job models.CronJob)
}

// Scheduler is the single loop that fires due jobs. Once per tick it scans
// the store, claims each due job, and dispatches it without waiting for the
// execution to finish.
type Scheduler struct {
	store      *Store
	dispatcher Dispatcher
	interval   time.Duration
	logger     zerolog.Logger
}

func NewScheduler(store *Store, dispatcher Dispatcher, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger.With().Str("component", "cron-scheduler").Logger(),
	}
}

// Run reconciles persisted fire times and then ticks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Reconcile(time.Now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("cron scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cron scheduler stopped")
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick fires every due job. Store errors are treated as transient, the
// next tick retries; a bad job is skipped without blocking the rest.
func (s *Scheduler) tick(now time.Time) {
	jobs, err := s.store.DueJobs(now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("due-job scan failed, retrying next tick")
		return
	}

	for _, job := range jobs {
		if err := s.fire(job, now); err != nil {
			s.logger.Error().Err(err).Str("job", job.ID).Str("name", job.Name).Msg("failed to fire job")
		}
	}
}

// fire claims the job and dispatches it. The next occurrence is computed
// from now, not from the run's completion, so a long-running execution
// never delays the schedule. Missed windows are not backfilled.
func (s *Scheduler) fire(job models.CronJob, now time.Time) error {
	sched, err := schedule.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("unparseable schedule %q: %w", job.Schedule, err)
	}

	claimed, err := s.store.ClaimNextRun(job.ID, now, sched.Next(now))
	if err != nil {
		return err
	}
	if !claimed {
		// Another tick, or a concurrent edit, got there first.
		return nil
	}

	s.dispatcher.Dispatch(job)
	return nil
}

// Reconcile recomputes next_run_at for all enabled jobs from now and clears
// stale values on disabled ones. Run at startup so the schedule self-heals
// after downtime instead of trusting persisted fire times.
func (s *Scheduler) Reconcile(now time.Time) {
	if err := s.store.ClearDisabledNextRuns(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear disabled jobs")
	}

	jobs, err := s.store.ListEnabled()
	if err != nil {
		s.logger.Warn().Err(err).Msg("reconcile scan failed")
		return
	}

	for _, job := range jobs {
		sched, err := schedule.Parse(job.Schedule)
		if err != nil {
			s.logger.Warn().Err(err).Str("job", job.ID).Msg("skipping job with invalid schedule")
			continue
		}
		next := sched.Next(now)
		if err := s.store.SetNextRun(job.ID, &next); err != nil {
			s.logger.Warn().Err(err).Str("job", job.ID).Msg("failed to reset next run")
		}
	}
	s.logger.Info().Int("jobs", len(jobs)).Msg("recomputed fire times")
}
