package postgres

import (
	"context"
	"fmt"

	"github.com/cuongbtq/schedulex/internal/domain"
)

func (s *Storage) CreateTransaction(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			order_id, payment_id, amount, status, payment_method,
			gateway_response, error_message, attempt_number, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		tx.OrderID,
		tx.PaymentID,
		tx.Amount,
		tx.Status,
		tx.PaymentMethod,
		tx.GatewayResponse,
		tx.ErrorMessage,
		tx.AttemptNumber,
		tx.AttemptedAt,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}

	return nil
}

func (s *Storage) UpdateTransaction(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions
		SET payment_id = $1,
		    status = $2,
		    payment_method = $3,
		    gateway_response = $4,
		    error_message = $5
		WHERE id = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		tx.PaymentID,
		tx.Status,
		tx.PaymentMethod,
		tx.GatewayResponse,
		tx.ErrorMessage,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment transaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("failed to update payment transaction: id %d not found", tx.ID)
	}

	return nil
}

func (s *Storage) ListTransactions(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error) {
	query := `
		SELECT id, order_id, payment_id, amount, status, payment_method,
		       gateway_response, error_message, attempt_number, attempted_at
		FROM payment_transactions
		WHERE order_id = $1
		ORDER BY attempt_number ASC, id ASC
	`

	txs := make([]domain.PaymentTransaction, 0)
	if err := s.db.SelectContext(ctx, &txs, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}

	return txs, nil
}
