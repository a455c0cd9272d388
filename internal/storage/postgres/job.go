package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/storage"
)

const jobColumns = `
	job_id, job_name, job_type, cron_expression, payload, scheduled_time,
	status, priority, retry_count, max_retries, last_error,
	created_at, updated_at, last_execution_time
`

func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `) VALUES (
			:job_id, :job_name, :job_type, :cron_expression, :payload, :scheduled_time,
			:status, :priority, :retry_count, :max_retries, :last_error,
			:created_at, :updated_at, :last_execution_time
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *Storage) ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	jobs := make([]domain.Job, 0)
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (s *Storage) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND scheduled_time <= $2
		ORDER BY priority DESC, scheduled_time ASC
		LIMIT $3
	`

	jobs := make([]domain.Job, 0)
	if err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusPending, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}

	return jobs, nil
}

// ClaimJob attempts to claim a job using optimistic locking
func (s *Storage) ClaimJob(ctx context.Context, jobID string, now time.Time) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    last_execution_time = $2,
		    updated_at = $2
		WHERE job_id = $3
		  AND status = $4
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusRunning, now, jobID, domain.JobStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("Job already claimed or not found", slog.String("job_id", jobID))
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return &job, nil
}

func (s *Storage) UpdateJob(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET job_name = :job_name,
		    job_type = :job_type,
		    cron_expression = :cron_expression,
		    payload = :payload,
		    scheduled_time = :scheduled_time,
		    status = :status,
		    priority = :priority,
		    retry_count = :retry_count,
		    max_retries = :max_retries,
		    last_error = :last_error,
		    updated_at = :updated_at,
		    last_execution_time = :last_execution_time
		WHERE job_id = :job_id
	`

	result, err := s.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

func (s *Storage) CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus `db:"status"`
		Count  int64            `db:"count"`
	}

	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM jobs GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *Storage) ResetStaleJobs(ctx context.Context, cutoff, now time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = $4
		WHERE status = $2
		  AND last_execution_time < $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, domain.JobStatusRunning, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
