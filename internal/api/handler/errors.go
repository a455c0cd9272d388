package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/schedulex/internal/domain"
)

// respondError maps domain errors onto HTTP status codes
func respondError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case domain.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidJob), errors.Is(err, domain.ErrInvalidOrder):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrOrderAlreadyExists),
		errors.Is(err, domain.ErrOrderNotRetryable),
		errors.Is(err, domain.ErrStatusMismatch):
		status, code = http.StatusConflict, "conflict"
	}

	if status == http.StatusInternalServerError {
		logger.Error(msg, slog.Any("error", err))
		c.JSON(status, gin.H{"error": code, "msg": msg})
		return
	}

	logger.Warn(msg, slog.Int("status", status), slog.String("error", err.Error()))
	c.JSON(status, gin.H{"error": code, "msg": err.Error()})
}
