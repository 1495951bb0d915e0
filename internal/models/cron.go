package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Execution statuses shared by CronJob.LastStatus and CronJobLog.Status.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

// CronJob is a scheduled task bound to a node. NextRunAt is nil while the
// job is disabled and always points at the earliest future fire time while
// it is enabled.
type CronJob struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	NodeID      string     `json:"node_id" gorm:"type:varchar(36);index"`
	Name        string     `json:"name" gorm:"size:100;not null"`
	Schedule    string     `json:"schedule" gorm:"size:100;not null"` // 5-field cron expression
	Command     string     `json:"command" gorm:"type:text;not null"`
	User        string     `json:"user" gorm:"size:100;default:'root'"`
	Enabled     bool       `json:"enabled" gorm:"default:true"`
	Timeout     int        `json:"timeout" gorm:"default:3600"` // seconds
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty" gorm:"index"`
	LastStatus  string     `json:"last_status,omitempty" gorm:"size:20"`
	Description string     `json:"description,omitempty" gorm:"size:500"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (j *CronJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// CronJobLog records one execution attempt. A row with a nil EndedAt is a
// run still in flight; Status stays empty until the run is finalized.
type CronJobLog struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	JobID     string     `json:"job_id" gorm:"type:varchar(36);index;not null"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Duration  int64      `json:"duration"` // milliseconds
	Status    string     `json:"status" gorm:"size:20"`
	Output    string     `json:"output,omitempty" gorm:"type:text"`
	Error     string     `json:"error,omitempty" gorm:"type:text"`
	ExitCode  int        `json:"exit_code"`
}
