// Package job creates and queries scheduled jobs.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/storage"
)

// Service validates and persists jobs
type Service struct {
	store             storage.JobStore
	logger            *slog.Logger
	defaultMaxRetries int
	nowFunc           func() time.Time
}

// NewService creates a new Service instance
func NewService(store storage.JobStore, logger *slog.Logger, defaultMaxRetries int) *Service {
	if defaultMaxRetries < 0 {
		defaultMaxRetries = domain.DefaultJobMaxRetries
	}
	return &Service{
		store:             store,
		logger:            logger,
		defaultMaxRetries: defaultMaxRetries,
		nowFunc:           time.Now,
	}
}

// CreateInput carries producer-supplied job fields. Nil pointers take defaults.
type CreateInput struct {
	Name           string
	Type           domain.JobType
	CronExpression string
	Payload        string
	ScheduledTime  *time.Time
	Priority       int
	MaxRetries     *int
}

// Create builds a job from producer input and schedules it
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Job, error) {
	job := &domain.Job{
		Name:           in.Name,
		Type:           in.Type,
		CronExpression: in.CronExpression,
		Payload:        in.Payload,
		Priority:       in.Priority,
		MaxRetries:     s.defaultMaxRetries,
	}
	if in.ScheduledTime != nil {
		job.ScheduledTime = *in.ScheduledTime
	}
	if in.MaxRetries != nil {
		job.MaxRetries = *in.MaxRetries
	}

	return s.Schedule(ctx, job)
}

// Schedule assigns an id, resets lifecycle fields to PENDING and persists the
// job. A zero scheduled time means now for ONE_TIME jobs and the next cron
// activation for RECURRING ones. The passed job is updated in place.
func (s *Service) Schedule(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	now := s.nowFunc()

	job.Name = strings.TrimSpace(job.Name)
	if job.Name == "" {
		return nil, fmt.Errorf("%w: job_name is required", domain.ErrInvalidJob)
	}
	if job.Type == "" {
		job.Type = domain.JobTypeOneTime
	}
	if job.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max_retries must not be negative", domain.ErrInvalidJob)
	}

	switch job.Type {
	case domain.JobTypeOneTime:
		job.CronExpression = ""
		if job.ScheduledTime.IsZero() {
			job.ScheduledTime = now
		}
	case domain.JobTypeRecurring:
		if job.CronExpression == "" {
			return nil, fmt.Errorf("%w: cron_expression is required for RECURRING jobs", domain.ErrInvalidJob)
		}
		next, err := NextActivation(job.CronExpression, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidJob, err)
		}
		if job.ScheduledTime.IsZero() {
			job.ScheduledTime = next
		}
	default:
		return nil, fmt.Errorf("%w: unknown job_type %q", domain.ErrInvalidJob, job.Type)
	}

	job.JobID = uuid.New().String()
	job.Status = domain.JobStatusPending
	job.RetryCount = 0
	job.LastError = ""
	job.LastExecutionTime = nil
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("job_name", job.Name),
		slog.String("job_type", string(job.Type)),
		slog.Time("scheduled_time", job.ScheduledTime),
		slog.Int("priority", job.Priority),
	)

	return job, nil
}

// NextOccurrence schedules the follow-up run of a completed RECURRING job
func (s *Service) NextOccurrence(ctx context.Context, completed *domain.Job) (*domain.Job, error) {
	if completed.Type != domain.JobTypeRecurring {
		return nil, nil
	}

	next, err := NextActivation(completed.CronExpression, s.nowFunc())
	if err != nil {
		return nil, err
	}

	return s.Schedule(ctx, &domain.Job{
		Name:           completed.Name,
		Type:           domain.JobTypeRecurring,
		CronExpression: completed.CronExpression,
		Payload:        completed.Payload,
		ScheduledTime:  next,
		Priority:       completed.Priority,
		MaxRetries:     completed.MaxRetries,
	})
}

func (s *Service) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

func (s *Service) List(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	return s.store.ListJobs(ctx, filter)
}

func (s *Service) Stats(ctx context.Context) (domain.JobStats, error) {
	counts, err := s.store.CountJobsByStatus(ctx)
	if err != nil {
		return domain.JobStats{}, fmt.Errorf("failed to count jobs: %w", err)
	}
	return domain.NewJobStats(counts), nil
}
