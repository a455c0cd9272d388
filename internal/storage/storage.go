// Package storage declares the persistence contracts of the scheduler and
// the payment workflow. Implementations live in the postgres and memory
// subpackages.
package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/schedulex/internal/domain"
)

// JobStore is the durable record of jobs and their lifecycle status
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// ListJobs returns up to PageSize+1 jobs so callers can tell whether a next page exists
	ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error)

	// ListDueJobs returns PENDING jobs with scheduled_time <= now, highest priority first
	ListDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)

	// ClaimJob flips a PENDING job to RUNNING and stamps last_execution_time.
	// Returns domain.ErrJobAlreadyClaimed when the job is no longer PENDING.
	ClaimJob(ctx context.Context, jobID string, now time.Time) (*domain.Job, error)

	UpdateJob(ctx context.Context, job *domain.Job) error
	CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)

	// ResetStaleJobs moves RUNNING jobs whose last execution started before
	// cutoff back to PENDING, stamping updated_at with now, and returns how
	// many were reset
	ResetStaleJobs(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// OrderStore is the durable record of orders and their retry bookkeeping
type OrderStore interface {
	// CreateOrder inserts the order and fills in its internal id.
	// Returns domain.ErrOrderAlreadyExists on a duplicate order id.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)

	// ListOrdersDueForRetry returns FAILED orders with next_retry_time <= now
	ListOrdersDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)

	// ClaimOrderPayment flips payment_status from expected to PROCESSING and
	// stamps last_retry_time. Returns domain.ErrStatusMismatch when another
	// attempt got there first.
	ClaimOrderPayment(ctx context.Context, orderID string, expected domain.PaymentStatus, now time.Time) (*domain.Order, error)

	UpdateOrder(ctx context.Context, order *domain.Order) error
	CountOrdersByPaymentStatus(ctx context.Context) (map[domain.PaymentStatus]int64, error)
}

// TransactionStore keeps the audit trail of payment attempts
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *domain.PaymentTransaction) error
	UpdateTransaction(ctx context.Context, tx *domain.PaymentTransaction) error

	// ListTransactions returns the order's attempts ordered by attempt_number
	ListTransactions(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error)
}

// Store bundles every persistence contract
type Store interface {
	JobStore
	OrderStore
	TransactionStore
	Close() error
}

type JobFilter struct {
	Status   domain.JobStatus
	Type     domain.JobType
	PageSize int
	Cursor   *Cursor
}

type OrderFilter struct {
	PaymentStatus domain.PaymentStatus
	CustomerID    string
	PageSize      int
	Cursor        *Cursor
}

// Cursor is a keyset position for (created_at DESC, id DESC) pagination
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
