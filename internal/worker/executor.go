package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/payment"
)

// Executor runs the body of a job. A returned error counts as a failed attempt.
type Executor interface {
	Execute(ctx context.Context, job *domain.Job) error
}

// PaymentRetrier re-attempts the payment of an order
type PaymentRetrier interface {
	RetryPayment(ctx context.Context, orderID string) (*domain.Order, error)
}

// PaymentRetryExecutor runs "Payment Retry - <order_id>" jobs. The payload is
// the order id. An order that no longer needs the attempt completes the job.
type PaymentRetryExecutor struct {
	payments PaymentRetrier
	logger   *slog.Logger
}

func NewPaymentRetryExecutor(payments PaymentRetrier, logger *slog.Logger) *PaymentRetryExecutor {
	return &PaymentRetryExecutor{
		payments: payments,
		logger:   logger,
	}
}

func (e *PaymentRetryExecutor) Execute(ctx context.Context, job *domain.Job) error {
	orderID := strings.TrimSpace(job.Payload)
	if orderID == "" {
		return fmt.Errorf("payment retry job %s has no order id", job.JobID)
	}

	order, err := e.payments.RetryPayment(ctx, orderID)
	if err != nil {
		if payment.ShouldSkip(err) {
			e.logger.Info("Payment retry skipped",
				slog.String("job_id", job.JobID),
				slog.String("order_id", orderID),
				slog.String("reason", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("payment retry for order %s: %w", orderID, err)
	}

	e.logger.Info("Payment retry attempted",
		slog.String("job_id", job.JobID),
		slog.String("order_id", orderID),
		slog.String("payment_status", string(order.PaymentStatus)),
	)
	return nil
}

// DelayExecutor stands in for arbitrary work: it waits for a fixed duration
type DelayExecutor struct {
	Duration time.Duration
}

func (e DelayExecutor) Execute(ctx context.Context, job *domain.Job) error {
	select {
	case <-time.After(e.Duration):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job execution canceled: %w", ctx.Err())
	}
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, job *domain.Job) error

func (f ExecutorFunc) Execute(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}
