package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/storage"
)

const orderColumns = `
	id, order_id, customer_id, customer_name, customer_email, customer_phone,
	amount, order_items, payment_status, order_status, payment_id,
	payment_gateway_order_id, retry_count, max_retries, next_retry_time,
	last_retry_time, failure_reason, created_at, updated_at, paid_at
`

// uniqueViolation is the PostgreSQL error code for unique_violation
const uniqueViolation = "23505"

func (s *Storage) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			order_id, customer_id, customer_name, customer_email, customer_phone,
			amount, order_items, payment_status, order_status, payment_id,
			payment_gateway_order_id, retry_count, max_retries, next_retry_time,
			last_retry_time, failure_reason, created_at, updated_at, paid_at
		) VALUES (
			:order_id, :customer_id, :customer_name, :customer_email, :customer_phone,
			:amount, :order_items, :payment_status, :order_status, :payment_id,
			:payment_gateway_order_id, :retry_count, :max_retries, :next_retry_time,
			:last_retry_time, :failure_reason, :created_at, :updated_at, :paid_at
		)
		RETURNING id
	`

	rows, err := s.db.NamedQueryContext(ctx, query, order)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&order.ID); err != nil {
			return fmt.Errorf("failed to scan order id: %w", err)
		}
	}

	return rows.Err()
}

func (s *Storage) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	var order domain.Order
	if err := s.db.GetContext(ctx, &order, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &order, nil
}

func (s *Storage) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.PaymentStatus != "" {
		query += fmt.Sprintf(" AND payment_status = $%d", argIdx)
		args = append(args, filter.PaymentStatus)
		argIdx++
	}

	if filter.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", argIdx)
		args = append(args, filter.CustomerID)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, order_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, order_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	orders := make([]domain.Order, 0)
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, nil
}

func (s *Storage) ListOrdersDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_status = $1
		  AND next_retry_time IS NOT NULL
		  AND next_retry_time <= $2
		ORDER BY next_retry_time ASC
		LIMIT $3
	`

	orders := make([]domain.Order, 0)
	if err := s.db.SelectContext(ctx, &orders, query, domain.PaymentStatusFailed, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list orders due for retry: %w", err)
	}

	return orders, nil
}

// ClaimOrderPayment moves the order into PROCESSING only if nobody else did
func (s *Storage) ClaimOrderPayment(ctx context.Context, orderID string, expected domain.PaymentStatus, now time.Time) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET payment_status = $1,
		    last_retry_time = $2,
		    updated_at = $2
		WHERE order_id = $3
		  AND payment_status = $4
		RETURNING ` + orderColumns

	var order domain.Order
	err := s.db.GetContext(ctx, &order, query, domain.PaymentStatusProcessing, now, orderID, expected)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim order payment: %w", err)
	}

	// Distinguish a missing order from one another attempt already moved
	if _, getErr := s.GetOrder(ctx, orderID); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrStatusMismatch
}

func (s *Storage) UpdateOrder(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET customer_id = :customer_id,
		    customer_name = :customer_name,
		    customer_email = :customer_email,
		    customer_phone = :customer_phone,
		    amount = :amount,
		    order_items = :order_items,
		    payment_status = :payment_status,
		    order_status = :order_status,
		    payment_id = :payment_id,
		    payment_gateway_order_id = :payment_gateway_order_id,
		    retry_count = :retry_count,
		    max_retries = :max_retries,
		    next_retry_time = :next_retry_time,
		    last_retry_time = :last_retry_time,
		    failure_reason = :failure_reason,
		    updated_at = :updated_at,
		    paid_at = :paid_at
		WHERE order_id = :order_id
	`

	result, err := s.db.NamedExecContext(ctx, query, order)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

func (s *Storage) CountOrdersByPaymentStatus(ctx context.Context) (map[domain.PaymentStatus]int64, error) {
	var rows []struct {
		Status domain.PaymentStatus `db:"payment_status"`
		Count  int64                `db:"count"`
	}

	query := `SELECT payment_status, COUNT(*) AS count FROM orders GROUP BY payment_status`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	counts := make(map[domain.PaymentStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
