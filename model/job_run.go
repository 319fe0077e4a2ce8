package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// JobRun records one execution of a background job.
type JobRun struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name       string     `json:"name" gorm:"type:varchar(100);not null;index"`
	Status     string     `json:"status" gorm:"type:varchar(20);not null"`
	Progress   string     `json:"progress" gorm:"type:text"`
	Message    string     `json:"message" gorm:"type:text"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (JobRun) TableName() string {
	return "job_runs"
}

func (j *JobRun) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
