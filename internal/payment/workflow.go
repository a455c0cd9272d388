// Package payment drives orders through payment attempts and schedules
// retry jobs when an attempt is declined.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/events"
	"github.com/cuongbtq/schedulex/internal/storage"
)

// Store is the persistence the workflow needs
type Store interface {
	storage.OrderStore
	storage.TransactionStore
}

// JobScheduler persists a job for the scheduler to pick up
type JobScheduler interface {
	Schedule(ctx context.Context, job *domain.Job) (*domain.Job, error)
}

// Config holds workflow tunables
type Config struct {
	OrderMaxRetries  int
	RetryJobPriority int
	Policy           RetryPolicy

	// SaveAttempts and SaveRetryDelay bound how hard an attempt's outcome is
	// written back before giving up. The delay doubles after every failure.
	SaveAttempts   int
	SaveRetryDelay time.Duration
}

// Workflow owns every payment status transition of an order
type Workflow struct {
	store     Store
	jobs      JobScheduler
	gateway   Gateway
	policy    RetryPolicy
	publisher events.Publisher
	logger    *slog.Logger
	cfg       Config
	nowFunc   func() time.Time
}

// NewWorkflow creates a new Workflow instance
func NewWorkflow(store Store, jobs JobScheduler, gateway Gateway, publisher events.Publisher, logger *slog.Logger, cfg Config) *Workflow {
	if cfg.OrderMaxRetries <= 0 {
		cfg.OrderMaxRetries = domain.DefaultOrderMaxRetries
	}
	if cfg.RetryJobPriority == 0 {
		cfg.RetryJobPriority = 8
	}
	if cfg.SaveAttempts <= 0 {
		cfg.SaveAttempts = 3
	}
	if cfg.SaveRetryDelay <= 0 {
		cfg.SaveRetryDelay = 200 * time.Millisecond
	}
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Workflow{
		store:     store,
		jobs:      jobs,
		gateway:   gateway,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// CreateOrderInput carries the producer-supplied order fields
type CreateOrderInput struct {
	OrderID       string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Amount        float64
	OrderItems    string
	MaxRetries    int
}

// CreateOrder persists a new order and makes the first payment attempt.
// A declined attempt is not an error; the returned order reflects it.
func (w *Workflow) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidOrder)
	}

	orderID := in.OrderID
	if orderID == "" {
		orderID = NewOrderID()
	}

	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = w.cfg.OrderMaxRetries
	}

	now := w.nowFunc()
	order := &domain.Order{
		OrderID:       orderID,
		CustomerID:    in.CustomerID,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		CustomerPhone: in.CustomerPhone,
		Amount:        in.Amount,
		OrderItems:    in.OrderItems,
		PaymentStatus: domain.PaymentStatusPending,
		OrderStatus:   domain.OrderStatusCreated,
		MaxRetries:    maxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := w.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	w.logger.Info("Order created",
		slog.String("order_id", order.OrderID),
		slog.Float64("amount", order.Amount),
	)
	w.publish(ctx, events.OrderCreated, order)

	return w.attempt(ctx, order.OrderID, domain.PaymentStatusPending)
}

// RetryPayment re-attempts a FAILED order whose retry is due. It backs both
// the payment retry jobs and the periodic scan; whichever claims the order
// first performs the attempt and the other gets a skip error.
func (w *Workflow) RetryPayment(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := w.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == domain.PaymentStatusProcessing {
		return order, domain.ErrStatusMismatch
	}
	if !order.CanRetry() {
		return order, domain.ErrOrderNotRetryable
	}
	if !order.IsRetryDue(w.nowFunc()) {
		return order, domain.ErrRetryNotDue
	}

	return w.attempt(ctx, orderID, domain.PaymentStatusFailed)
}

// TriggerRetry re-attempts a FAILED order immediately, ignoring next_retry_time
func (w *Workflow) TriggerRetry(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := w.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.CanRetry() {
		return order, domain.ErrOrderNotRetryable
	}

	w.logger.Info("Manual payment retry requested", slog.String("order_id", orderID))
	return w.attempt(ctx, orderID, domain.PaymentStatusFailed)
}

// ProcessDueRetries re-attempts every order whose retry time has passed and
// returns how many attempts were made.
func (w *Workflow) ProcessDueRetries(ctx context.Context, limit int) (int, error) {
	orders, err := w.store.ListOrdersDueForRetry(ctx, w.nowFunc(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load orders due for retry: %w", err)
	}

	attempted := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}

		_, err := w.RetryPayment(ctx, o.OrderID)
		switch {
		case err == nil:
			attempted++
		case ShouldSkip(err):
			w.logger.Debug("Skipping payment retry",
				slog.String("order_id", o.OrderID),
				slog.String("reason", err.Error()),
			)
		default:
			w.logger.Error("Payment retry failed",
				slog.String("order_id", o.OrderID),
				slog.Any("error", err),
			)
		}
	}

	return attempted, nil
}

// ShouldSkip reports whether err means the order no longer needs this attempt
func ShouldSkip(err error) bool {
	return errors.Is(err, domain.ErrOrderNotRetryable) ||
		errors.Is(err, domain.ErrRetryNotDue) ||
		errors.Is(err, domain.ErrStatusMismatch)
}

func (w *Workflow) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return w.store.GetOrder(ctx, orderID)
}

func (w *Workflow) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]domain.Order, error) {
	return w.store.ListOrders(ctx, filter)
}

// ListTransactions returns the attempts of an existing order
func (w *Workflow) ListTransactions(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error) {
	if _, err := w.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return w.store.ListTransactions(ctx, orderID)
}

func (w *Workflow) Stats(ctx context.Context) (domain.OrderStats, error) {
	counts, err := w.store.CountOrdersByPaymentStatus(ctx)
	if err != nil {
		return domain.OrderStats{}, err
	}
	return domain.NewOrderStats(counts), nil
}

// attempt claims the order, records a transaction, charges the gateway and
// applies the outcome. Once claimed the attempt runs to completion even if
// ctx is cancelled, so the order never stays in PROCESSING.
func (w *Workflow) attempt(ctx context.Context, orderID string, expected domain.PaymentStatus) (*domain.Order, error) {
	order, err := w.store.ClaimOrderPayment(ctx, orderID, expected, w.nowFunc())
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	attemptNumber := order.RetryCount + 1
	logger := w.logger.With(
		slog.String("order_id", order.OrderID),
		slog.Int("attempt", attemptNumber),
		slog.Int("max_retries", order.MaxRetries),
	)
	logger.Info("Attempting payment")

	tx := &domain.PaymentTransaction{
		OrderID:       order.OrderID,
		Amount:        order.Amount,
		Status:        domain.PaymentStatusProcessing,
		AttemptNumber: attemptNumber,
		AttemptedAt:   w.nowFunc(),
	}
	if err := w.store.CreateTransaction(ctx, tx); err != nil {
		order.PaymentStatus = expected
		order.UpdatedAt = w.nowFunc()
		if restoreErr := w.saveOrder(ctx, order, logger); restoreErr != nil {
			logger.Error("Failed to restore order after transaction error", slog.Any("error", restoreErr))
		}
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}

	result, chargeErr := w.gateway.Charge(ctx, order, attemptNumber)
	if chargeErr != nil {
		result = ChargeResult{FailureReason: "System error: " + chargeErr.Error()}
	}

	if result.GatewayOrderID != "" {
		order.PaymentGatewayOrderID = result.GatewayOrderID
	}

	tx.PaymentMethod = result.Method
	tx.GatewayResponse = result.RawResponse
	if result.Success {
		tx.Status = domain.PaymentStatusSuccess
		tx.PaymentID = result.PaymentID
	} else {
		tx.Status = domain.PaymentStatusFailed
		tx.ErrorMessage = result.FailureReason
	}
	if err := w.store.UpdateTransaction(ctx, tx); err != nil {
		logger.Error("Failed to record payment outcome", slog.Any("error", err))
	}

	if result.Success {
		return w.handleSuccess(ctx, order, result, logger)
	}
	return w.handleFailure(ctx, order, result.FailureReason, logger)
}

func (w *Workflow) handleSuccess(ctx context.Context, order *domain.Order, result ChargeResult, logger *slog.Logger) (*domain.Order, error) {
	now := w.nowFunc()
	order.PaymentStatus = domain.PaymentStatusSuccess
	order.OrderStatus = domain.OrderStatusPaid
	order.PaymentID = result.PaymentID
	order.PaidAt = &now
	order.NextRetryTime = nil
	order.UpdatedAt = now

	if err := w.saveOrder(ctx, order, logger); err != nil {
		logger.Error("Paid order could not be saved",
			slog.String("payment_id", order.PaymentID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to save paid order: %w", err)
	}

	logger.Info("Payment succeeded", slog.String("payment_id", order.PaymentID))
	w.publish(ctx, events.PaymentSucceeded, order)

	return order, nil
}

func (w *Workflow) handleFailure(ctx context.Context, order *domain.Order, reason string, logger *slog.Logger) (*domain.Order, error) {
	now := w.nowFunc()
	order.PaymentStatus = domain.PaymentStatusFailed
	order.FailureReason = reason
	order.RetryCount++
	order.UpdatedAt = now

	if !order.CanRetry() {
		order.PaymentStatus = domain.PaymentStatusCancelled
		order.OrderStatus = domain.OrderStatusCancelled
		order.NextRetryTime = nil

		if err := w.saveOrder(ctx, order, logger); err != nil {
			return nil, fmt.Errorf("failed to save cancelled order: %w", err)
		}

		logger.Error("Order cancelled after max retries", slog.String("reason", reason))
		w.publish(ctx, events.PaymentFailed, order)
		w.publish(ctx, events.OrderCancelled, order)
		return order, nil
	}

	next := now.Add(w.policy.Delay(order.RetryCount))
	order.NextRetryTime = &next
	order.OrderStatus = domain.OrderStatusPaymentFailed

	if err := w.saveOrder(ctx, order, logger); err != nil {
		return nil, fmt.Errorf("failed to save failed order: %w", err)
	}

	logger.Warn("Payment failed", slog.String("reason", reason))
	w.publish(ctx, events.PaymentFailed, order)

	// The periodic scan still picks the order up if the job cannot be stored
	job := &domain.Job{
		Name:          domain.PaymentRetryJobName(order.OrderID),
		Type:          domain.JobTypeOneTime,
		Payload:       order.OrderID,
		ScheduledTime: next,
		Priority:      w.cfg.RetryJobPriority,
		MaxRetries:    1,
	}
	if _, err := w.jobs.Schedule(ctx, job); err != nil {
		logger.Error("Failed to schedule payment retry job", slog.Any("error", err))
		return order, nil
	}

	logger.Info("Payment retry scheduled",
		slog.String("job_id", job.JobID),
		slog.Time("next_retry_time", next),
	)
	w.publish(ctx, events.PaymentRetryScheduled, order)

	return order, nil
}

// saveOrder writes a claimed order back, retrying with backoff. A claimed
// order sits in PROCESSING until this succeeds and no retry path picks it up.
func (w *Workflow) saveOrder(ctx context.Context, order *domain.Order, logger *slog.Logger) error {
	delay := w.cfg.SaveRetryDelay

	var err error
	for attempt := 1; attempt <= w.cfg.SaveAttempts; attempt++ {
		if err = w.store.UpdateOrder(ctx, order); err == nil {
			return nil
		}
		if attempt < w.cfg.SaveAttempts {
			logger.Warn("Failed to save order, retrying...",
				slog.Int("save_attempt", attempt),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("order not saved after %d attempts: %w", w.cfg.SaveAttempts, err)
}

func (w *Workflow) publish(ctx context.Context, t events.Type, order *domain.Order) {
	data := map[string]any{
		"order_id":       order.OrderID,
		"customer_id":    order.CustomerID,
		"amount":         order.Amount,
		"payment_status": string(order.PaymentStatus),
		"order_status":   string(order.OrderStatus),
		"retry_count":    order.RetryCount,
	}
	if order.FailureReason != "" && order.PaymentStatus != domain.PaymentStatusSuccess {
		data["failure_reason"] = order.FailureReason
	}
	if order.NextRetryTime != nil {
		data["next_retry_time"] = *order.NextRetryTime
	}
	if order.PaymentID != "" {
		data["payment_id"] = order.PaymentID
	}

	w.publisher.Publish(ctx, events.New(t, w.nowFunc(), data))
}

// NewOrderID returns an id of the form ORD_<12 uppercase hex digits>
func NewOrderID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "ORD_" + strings.ToUpper(hex[:12])
}
