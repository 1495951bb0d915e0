// Package cron implements the scheduling subsystem: the durable job store,
// the tick-based scheduler loop, and the subprocess executor.
package cron

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vpanel/internal/models"
	"vpanel/internal/services/schedule"
)

// ErrNotFound is returned for operations referencing a job id that does not
// exist (or was deleted).
var ErrNotFound = errors.New("cron job not found")

// Store is the single source of truth for job definitions and execution
// history. Multi-statement mutations run inside transactions, which hold
// the one SQLite connection until commit, so a scheduler claim can never
// land between an edit's read and its write.
type Store struct {
	db             *gorm.DB
	defaultTimeout time.Duration
}

func NewStore(db *gorm.DB, defaultTimeout time.Duration) *Store {
	return &Store{db: db, defaultTimeout: defaultTimeout}
}

// CreateJobParams carries a validated create request. Zero Timeout falls
// back to the store default; nil Enabled means enabled.
type CreateJobParams struct {
	NodeID      string
	Name        string
	Schedule    string
	Command     string
	User        string
	Enabled     *bool
	Timeout     int
	Description string
}

// UpdateJobParams is a partial update; nil fields are left untouched.
type UpdateJobParams struct {
	Name        *string
	Schedule    *string
	Command     *string
	User        *string
	Enabled     *bool
	Timeout     *int
	Description *string
}

// Create validates the schedule, fills defaults and persists the job with
// its initial next_run_at.
func (s *Store) Create(p CreateJobParams) (*models.CronJob, error) {
	sched, err := schedule.Parse(p.Schedule)
	if err != nil {
		return nil, err
	}

	job := &models.CronJob{
		NodeID:      p.NodeID,
		Name:        p.Name,
		Schedule:    sched.String(),
		Command:     p.Command,
		User:        p.User,
		Enabled:     true,
		Timeout:     p.Timeout,
		Description: p.Description,
	}
	if job.User == "" {
		job.User = "root"
	}
	if p.Enabled != nil {
		job.Enabled = *p.Enabled
	}
	if job.Timeout <= 0 {
		job.Timeout = int(s.defaultTimeout.Seconds())
	}
	if job.Enabled {
		next := sched.Next(time.Now())
		job.NextRunAt = &next
	}

	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("create cron job: %w", err)
	}
	return job, nil
}

func (s *Store) Get(id string) (*models.CronJob, error) {
	var job models.CronJob
	if err := s.db.First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// List returns jobs newest first, optionally filtered by node.
func (s *Store) List(nodeID string) ([]models.CronJob, error) {
	var jobs []models.CronJob
	q := s.db.Order("created_at desc")
	if nodeID != "" {
		q = q.Where("node_id = ?", nodeID)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Update applies a partial edit, re-validating the schedule and recomputing
// next_run_at when the schedule or enabled flag changes. Disabling clears
// next_run_at; re-enabling computes it from the current time.
//
// Only the columns actually edited are written. next_run_at in particular
// is owned by the scheduler between ticks: writing it back on an unrelated
// edit would undo a claim that advanced it and re-fire the occurrence.
func (s *Store) Update(id string, p UpdateJobParams) (*models.CronJob, error) {
	var job models.CronJob
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		updates := map[string]interface{}{}

		scheduleChanged := false
		if p.Schedule != nil && *p.Schedule != job.Schedule {
			if err := schedule.Validate(*p.Schedule); err != nil {
				return err
			}
			job.Schedule = *p.Schedule
			updates["schedule"] = job.Schedule
			scheduleChanged = true
		}
		if p.Name != nil && *p.Name != job.Name {
			job.Name = *p.Name
			updates["name"] = job.Name
		}
		if p.Command != nil && *p.Command != job.Command {
			job.Command = *p.Command
			updates["command"] = job.Command
		}
		if p.User != nil && *p.User != "" && *p.User != job.User {
			job.User = *p.User
			updates["user"] = job.User
		}
		if p.Description != nil && *p.Description != job.Description {
			job.Description = *p.Description
			updates["description"] = job.Description
		}
		if p.Timeout != nil && *p.Timeout > 0 && *p.Timeout != job.Timeout {
			job.Timeout = *p.Timeout
			updates["timeout"] = job.Timeout
		}

		enabledChanged := false
		if p.Enabled != nil && *p.Enabled != job.Enabled {
			job.Enabled = *p.Enabled
			updates["enabled"] = job.Enabled
			enabledChanged = true
		}

		if !job.Enabled {
			if job.NextRunAt != nil {
				job.NextRunAt = nil
				updates["next_run_at"] = nil
			}
		} else if scheduleChanged || enabledChanged || job.NextRunAt == nil {
			sched, err := schedule.Parse(job.Schedule)
			if err != nil {
				return err
			}
			next := sched.Next(time.Now())
			job.NextRunAt = &next
			updates["next_run_at"] = job.NextRunAt
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.CronJob{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("update cron job: %w", err)
		}
		// Re-read so the returned row carries the new updated_at.
		return tx.First(&job, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Delete removes the job and all of its logs in one transaction.
func (s *Store) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.CronJob{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Delete(&models.CronJobLog{}, "job_id = ?", id).Error
	})
}

// DueJobs returns enabled jobs whose next_run_at has passed, in firing
// order (earliest first, id as tiebreak).
func (s *Store) DueJobs(now time.Time) ([]models.CronJob, error) {
	var jobs []models.CronJob
	err := s.db.
		Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at, id").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimNextRun atomically advances a due job's next_run_at to next. The
// guard next_run_at <= now makes the claim a compare-and-swap: a competing
// tick that already advanced the job leaves zero rows to update, so only
// one dispatch happens per occurrence.
func (s *Store) ClaimNextRun(id string, now, next time.Time) (bool, error) {
	res := s.db.Model(&models.CronJob{}).
		Where("id = ? AND enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", id, true, now).
		Update("next_run_at", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListEnabled returns all enabled jobs, for the startup reconciliation pass.
func (s *Store) ListEnabled() ([]models.CronJob, error) {
	var jobs []models.CronJob
	if err := s.db.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// SetNextRun overwrites a job's next_run_at without claim semantics.
func (s *Store) SetNextRun(id string, next *time.Time) error {
	return s.db.Model(&models.CronJob{}).Where("id = ?", id).Update("next_run_at", next).Error
}

// ClearDisabledNextRuns nulls stale next_run_at values on disabled jobs.
func (s *Store) ClearDisabledNextRuns() error {
	return s.db.Model(&models.CronJob{}).
		Where("enabled = ? AND next_run_at IS NOT NULL", false).
		Update("next_run_at", nil).Error
}

// StartLog opens an execution log row before the command launches.
func (s *Store) StartLog(jobID string, startedAt time.Time) (*models.CronJobLog, error) {
	l := &models.CronJobLog{JobID: jobID, StartedAt: startedAt}
	if err := s.db.Create(l).Error; err != nil {
		return nil, fmt.Errorf("start cron log: %w", err)
	}
	return l, nil
}

// FinalizeLog persists a completed run exactly once and mirrors the result
// onto the owning job's last_run_at/last_status.
func (s *Store) FinalizeLog(l *models.CronJobLog) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(l).Error; err != nil {
			return err
		}
		return tx.Model(&models.CronJob{}).Where("id = ?", l.JobID).Updates(map[string]interface{}{
			"last_run_at": l.StartedAt,
			"last_status": l.Status,
		}).Error
	})
}

// ListLogs returns the job's recent runs, most recent first.
func (s *Store) ListLogs(jobID string, limit int) ([]models.CronJobLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.CronJobLog
	err := s.db.
		Where("job_id = ?", jobID).
		Order("id desc").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
