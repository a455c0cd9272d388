package dto

import (
	"time"

	"github.com/cuongbtq/schedulex/internal/domain"
)

type CreateJobRequest struct {
	JobName        string     `json:"job_name" validate:"required,max=255"`
	JobType        string     `json:"job_type" validate:"omitempty,oneof=ONE_TIME RECURRING"`
	CronExpression string     `json:"cron_expression" validate:"omitempty,cron"`
	Payload        string     `json:"payload"`
	ScheduledTime  *time.Time `json:"scheduled_time"`
	Priority       int        `json:"priority" validate:"min=0,max=100"`
	MaxRetries     *int       `json:"max_retries" validate:"omitempty,min=0,max=20"`
}

type ListJobsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=PENDING RUNNING COMPLETED FAILED"`
	JobType  string `form:"job_type" validate:"omitempty,oneof=ONE_TIME RECURRING"`
	PageSize int    `form:"page_size" validate:"min=0,max=100"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID             string  `json:"job_id"`
	JobName           string  `json:"job_name"`
	JobType           string  `json:"job_type"`
	CronExpression    string  `json:"cron_expression,omitempty"`
	Payload           string  `json:"payload"`
	ScheduledTime     string  `json:"scheduled_time"`
	Status            string  `json:"status"`
	Priority          int     `json:"priority"`
	RetryCount        int     `json:"retry_count"`
	MaxRetries        int     `json:"max_retries"`
	LastError         string  `json:"last_error,omitempty"`
	LastExecutionTime *string `json:"last_execution_time,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

func NewJobDTO(job *domain.Job) JobDTO {
	return JobDTO{
		JobID:             job.JobID,
		JobName:           job.Name,
		JobType:           string(job.Type),
		CronExpression:    job.CronExpression,
		Payload:           job.Payload,
		ScheduledTime:     job.ScheduledTime.Format(time.RFC3339),
		Status:            string(job.Status),
		Priority:          job.Priority,
		RetryCount:        job.RetryCount,
		MaxRetries:        job.MaxRetries,
		LastError:         job.LastError,
		LastExecutionTime: formatTime(job.LastExecutionTime),
		CreatedAt:         job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         job.UpdatedAt.Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
