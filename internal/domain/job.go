package domain

import (
	"strings"
	"time"
)

// JobStatus is the lifecycle status of a job
type JobStatus string

// Job status constants
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// JobStatuses lists every job status in lifecycle order
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
}

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	for _, known := range JobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// JobType distinguishes one-shot jobs from recurring ones
type JobType string

const (
	JobTypeOneTime   JobType = "ONE_TIME"
	JobTypeRecurring JobType = "RECURRING"
)

const (
	// PaymentRetryJobPrefix marks jobs whose payload is an order id to re-charge
	PaymentRetryJobPrefix = "Payment Retry"

	// DefaultJobMaxRetries is used when a producer does not set max_retries
	DefaultJobMaxRetries = 3
)

// Job represents a unit of deferred work
type Job struct {
	JobID             string     `db:"job_id"`
	Name              string     `db:"job_name"`
	Type              JobType    `db:"job_type"`
	CronExpression    string     `db:"cron_expression"`
	Payload           string     `db:"payload"`
	ScheduledTime     time.Time  `db:"scheduled_time"`
	Status            JobStatus  `db:"status"`
	Priority          int        `db:"priority"`
	RetryCount        int        `db:"retry_count"`
	MaxRetries        int        `db:"max_retries"`
	LastError         string     `db:"last_error"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
	LastExecutionTime *time.Time `db:"last_execution_time"`
}

// CanRetry reports whether the job has retry budget left
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IsPaymentRetry reports whether the job re-attempts an order payment
func (j *Job) IsPaymentRetry() bool {
	return strings.HasPrefix(j.Name, PaymentRetryJobPrefix)
}

// IsDue reports whether a pending job should be handed to the workers
func (j *Job) IsDue(now time.Time) bool {
	return j.Status == JobStatusPending && !j.ScheduledTime.After(now)
}

// MarkRunning claims the job for execution
func (j *Job) MarkRunning(now time.Time) {
	j.Status = JobStatusRunning
	j.LastExecutionTime = &now
	j.UpdatedAt = now
}

// MarkCompleted records a successful execution
func (j *Job) MarkCompleted(now time.Time) {
	j.Status = JobStatusCompleted
	j.LastError = ""
	j.UpdatedAt = now
}

// MarkAttemptFailed applies the retry policy after a failed execution.
// The job goes back to PENDING while budget remains, otherwise it becomes
// FAILED. scheduled_time is left untouched.
func (j *Job) MarkAttemptFailed(reason string, now time.Time) {
	j.LastError = reason
	j.UpdatedAt = now

	if j.CanRetry() {
		j.RetryCount++
		j.Status = JobStatusPending
		return
	}

	j.Status = JobStatusFailed
}

// PaymentRetryJobName builds the name of a payment retry job for an order
func PaymentRetryJobName(orderID string) string {
	return PaymentRetryJobPrefix + " - " + orderID
}

// JobStats holds per-status job counts
type JobStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// NewJobStats builds stats from per-status counts so Total always equals their sum
func NewJobStats(counts map[JobStatus]int64) JobStats {
	stats := JobStats{
		Pending:   counts[JobStatusPending],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
	}
	stats.Total = stats.Pending + stats.Running + stats.Completed + stats.Failed
	return stats
}
