package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/events"
)

// processJob claims a job, executes it and records the outcome. In-flight
// jobs are not canceled by shutdown; only the job timeout bounds them.
func (w *Worker) processJob(ctx context.Context, jobID string) {
	ctx = context.WithoutCancel(ctx)

	// Step 1: Claim job (PENDING → RUNNING)
	job, err := w.store.ClaimJob(ctx, jobID, w.nowFunc())
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			w.logger.Debug("Job already claimed, skipping",
				slog.String("job_id", jobID),
			)
			return
		}
		w.logger.Error("Failed to claim job",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}

	logger := w.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("job_name", job.Name),
	)
	logger.Info("Processing job",
		slog.Int("attempt", job.RetryCount+1),
		slog.Int("priority", job.Priority),
	)

	// Step 2: Execute
	execErr := w.executeJob(ctx, job)

	// Step 3: Record the outcome
	if execErr != nil {
		w.handleJobFailure(ctx, job, execErr, logger)
		return
	}
	w.handleJobSuccess(ctx, job, logger)
}

// executeJob runs the job body under the job timeout and turns a panic into an error
func (w *Worker) executeJob(ctx context.Context, job *domain.Job) (err error) {
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Job panicked",
				slog.String("job_id", job.JobID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in job %s: %v", job.Name, r)
		}
	}()

	return w.executorFor(job).Execute(ctx, job)
}

func (w *Worker) executorFor(job *domain.Job) Executor {
	if !job.IsPaymentRetry() {
		return w.defaultExecutor
	}
	if w.paymentExecutor == nil {
		return ExecutorFunc(func(context.Context, *domain.Job) error {
			return errors.New("payment workflow is not configured")
		})
	}
	return w.paymentExecutor
}

func (w *Worker) handleJobSuccess(ctx context.Context, job *domain.Job, logger *slog.Logger) {
	job.MarkCompleted(w.nowFunc())
	if err := w.store.UpdateJob(ctx, job); err != nil {
		logger.Error("Failed to update job status to COMPLETED", slog.Any("error", err))
		return
	}

	logger.Info("Job completed successfully")
	w.publishJob(ctx, events.JobCompleted, job)

	if job.Type != domain.JobTypeRecurring || w.jobs == nil {
		return
	}

	next, err := w.jobs.NextOccurrence(ctx, job)
	if err != nil {
		logger.Error("Failed to schedule next occurrence", slog.Any("error", err))
		return
	}
	logger.Info("Next occurrence scheduled",
		slog.String("next_job_id", next.JobID),
		slog.Time("scheduled_time", next.ScheduledTime),
	)
}

func (w *Worker) handleJobFailure(ctx context.Context, job *domain.Job, execErr error, logger *slog.Logger) {
	job.MarkAttemptFailed(execErr.Error(), w.nowFunc())
	if err := w.store.UpdateJob(ctx, job); err != nil {
		logger.Error("Failed to record job failure",
			slog.String("job_error", execErr.Error()),
			slog.Any("error", err),
		)
		return
	}

	if job.Status == domain.JobStatusPending {
		logger.Warn("Job will be retried",
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
			slog.String("error", execErr.Error()),
		)
		w.publishJob(ctx, events.JobRetrying, job)
		return
	}

	logger.Error("Job exceeded max retries",
		slog.Int("retry_count", job.RetryCount),
		slog.Int("max_retries", job.MaxRetries),
		slog.String("error", execErr.Error()),
	)
	w.publishJob(ctx, events.JobFailed, job)
}

func (w *Worker) publishJob(ctx context.Context, t events.Type, job *domain.Job) {
	data := map[string]any{
		"job_id":      job.JobID,
		"job_name":    job.Name,
		"status":      string(job.Status),
		"retry_count": job.RetryCount,
	}
	if job.LastError != "" {
		data["last_error"] = job.LastError
	}
	w.publisher.Publish(ctx, events.New(t, w.nowFunc(), data))
}
