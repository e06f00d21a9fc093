package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a stage run.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
)

// JobRun records one execution attempt of a pipeline stage.
type JobRun struct {
	ID               uuid.UUID  `json:"id"`
	JobType          string     `json:"job_type"`
	Status           JobStatus  `json:"status"`
	Attempt          int        `json:"attempt"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	RecordsCollected int        `json:"records_collected"`
	ErrorMsg         string     `json:"error_msg,omitempty"`
}

// NewJobRun returns a RUNNING job run for jobType.
func NewJobRun(jobType string, attempt int, now time.Time) *JobRun {
	return &JobRun{
		ID:        uuid.New(),
		JobType:   jobType,
		Status:    JobRunning,
		Attempt:   attempt,
		StartedAt: now,
	}
}

// Finish closes the run with the stage outcome.
func (j *JobRun) Finish(now time.Time, records int, err error) {
	j.FinishedAt = &now
	j.RecordsCollected = records
	if err != nil {
		j.Status = JobFailed
		j.ErrorMsg = err.Error()
		return
	}
	j.Status = JobSuccess
}
