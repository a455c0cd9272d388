package handler

import (
	"context"
	"log/slog"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/job"
	"github.com/cuongbtq/schedulex/internal/payment"
	"github.com/cuongbtq/schedulex/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobService is what the job endpoints need from the job package
type JobService interface {
	Create(ctx context.Context, in job.CreateInput) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	Stats(ctx context.Context) (domain.JobStats, error)
}

// OrderService is what the order endpoints need from the payment workflow
type OrderService interface {
	CreateOrder(ctx context.Context, in payment.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter storage.OrderFilter) ([]domain.Order, error)
	ListTransactions(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error)
	TriggerRetry(ctx context.Context, orderID string) (*domain.Order, error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Jobs      JobService
	Orders    OrderService
	Validator *validatorv10.Validate

	// Health reports backend availability for /health. Nil means always healthy.
	Health func(ctx context.Context) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	jobs     JobService
	validate *validatorv10.Validate
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		jobs:     deps.Jobs,
		validate: deps.Validator,
	}
}

// OrderHandler handles order and payment HTTP requests
type OrderHandler struct {
	logger   *slog.Logger
	orders   OrderService
	validate *validatorv10.Validate
}

// NewOrderHandler creates a new OrderHandler instance
func NewOrderHandler(deps *Dependencies) *OrderHandler {
	return &OrderHandler{
		logger:   deps.Logger,
		orders:   deps.Orders,
		validate: deps.Validator,
	}
}

func pageSize(requested int) int {
	if requested <= 0 {
		return defaultPageSize
	}
	if requested > maxPageSize {
		return maxPageSize
	}
	return requested
}
