package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/schedulex/internal/api/dto"
	"github.com/cuongbtq/schedulex/internal/api/validation"
	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/job"
	"github.com/cuongbtq/schedulex/internal/storage"
)

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		h.logger.Warn("Invalid create job request", slog.String("error", err.Error()))
		return
	}

	created, err := h.jobs.Create(c.Request.Context(), job.CreateInput{
		Name:           req.JobName,
		Type:           domain.JobType(req.JobType),
		CronExpression: req.CronExpression,
		Payload:        req.Payload,
		ScheduledTime:  req.ScheduledTime,
		Priority:       req.Priority,
		MaxRetries:     req.MaxRetries,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to create job", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobDTO(created))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request",
			"msg":   "job_id must be a valid UUID",
		})
		return
	}

	found, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(found))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional status/type filters and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := validation.BindQueryAndValidate(c, &req, h.validate); err != nil {
		return
	}

	size := pageSize(req.PageSize)

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request",
			"msg":   "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), storage.JobFilter{
		Status:   domain.JobStatus(req.Status),
		Type:     domain.JobType(req.JobType),
		PageSize: size,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to list jobs", err)
		return
	}

	// The store returns one extra row when another page exists
	hasMore := len(jobs) > size
	if hasMore {
		jobs = jobs[:size]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = dto.NewJobDTO(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeCursor(&storage.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// GetStats handles GET /api/v1/jobs/stats
func (h *JobHandler) GetStats(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to get job stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
