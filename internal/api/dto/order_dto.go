package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/schedulex/internal/domain"
)

type CreateOrderRequest struct {
	OrderID       string          `json:"order_id" validate:"omitempty,max=100"`
	CustomerID    string          `json:"customer_id" validate:"required,max=100"`
	CustomerName  string          `json:"customer_name" validate:"max=255"`
	CustomerEmail string          `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone string          `json:"customer_phone" validate:"max=50"`
	Amount        float64         `json:"amount" validate:"required,gt=0"`
	OrderItems    json.RawMessage `json:"order_items"`
	MaxRetries    int             `json:"max_retries" validate:"min=0,max=10"`
}

type ListOrdersRequest struct {
	PaymentStatus string `form:"payment_status" validate:"omitempty,oneof=PENDING PROCESSING FAILED SUCCESS REFUNDED CANCELLED"`
	CustomerID    string `form:"customer_id"`
	PageSize      int    `form:"page_size" validate:"min=0,max=100"`
	Cursor        string `form:"cursor"`
}

type ListOrdersResponse struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type OrderDTO struct {
	OrderID               string          `json:"order_id"`
	CustomerID            string          `json:"customer_id"`
	CustomerName          string          `json:"customer_name,omitempty"`
	CustomerEmail         string          `json:"customer_email,omitempty"`
	CustomerPhone         string          `json:"customer_phone,omitempty"`
	Amount                float64         `json:"amount"`
	OrderItems            json.RawMessage `json:"order_items,omitempty"`
	PaymentStatus         string          `json:"payment_status"`
	OrderStatus           string          `json:"order_status"`
	PaymentID             string          `json:"payment_id,omitempty"`
	PaymentGatewayOrderID string          `json:"payment_gateway_order_id,omitempty"`
	RetryCount            int             `json:"retry_count"`
	MaxRetries            int             `json:"max_retries"`
	CanRetry              bool            `json:"can_retry"`
	NextRetryTime         *string         `json:"next_retry_time,omitempty"`
	LastRetryTime         *string         `json:"last_retry_time,omitempty"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	PaidAt                *string         `json:"paid_at,omitempty"`
	CreatedAt             string          `json:"created_at"`
	UpdatedAt             string          `json:"updated_at"`
}

func NewOrderDTO(order *domain.Order) OrderDTO {
	dto := OrderDTO{
		OrderID:               order.OrderID,
		CustomerID:            order.CustomerID,
		CustomerName:          order.CustomerName,
		CustomerEmail:         order.CustomerEmail,
		CustomerPhone:         order.CustomerPhone,
		Amount:                order.Amount,
		PaymentStatus:         string(order.PaymentStatus),
		OrderStatus:           string(order.OrderStatus),
		PaymentID:             order.PaymentID,
		PaymentGatewayOrderID: order.PaymentGatewayOrderID,
		RetryCount:            order.RetryCount,
		MaxRetries:            order.MaxRetries,
		CanRetry:              order.CanRetry(),
		NextRetryTime:         formatTime(order.NextRetryTime),
		LastRetryTime:         formatTime(order.LastRetryTime),
		FailureReason:         order.FailureReason,
		PaidAt:                formatTime(order.PaidAt),
		CreatedAt:             order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             order.UpdatedAt.Format(time.RFC3339),
	}
	// Items are stored as opaque JSON; anything else is dropped from the response
	if order.OrderItems != "" && json.Valid([]byte(order.OrderItems)) {
		dto.OrderItems = json.RawMessage(order.OrderItems)
	}
	return dto
}

type TransactionDTO struct {
	ID              int64   `json:"id"`
	OrderID         string  `json:"order_id"`
	PaymentID       string  `json:"payment_id,omitempty"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status"`
	PaymentMethod   string  `json:"payment_method,omitempty"`
	GatewayResponse string  `json:"gateway_response,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	AttemptNumber   int     `json:"attempt_number"`
	AttemptedAt     string  `json:"attempted_at"`
}

func NewTransactionDTO(tx *domain.PaymentTransaction) TransactionDTO {
	return TransactionDTO{
		ID:              tx.ID,
		OrderID:         tx.OrderID,
		PaymentID:       tx.PaymentID,
		Amount:          tx.Amount,
		Status:          string(tx.Status),
		PaymentMethod:   tx.PaymentMethod,
		GatewayResponse: tx.GatewayResponse,
		ErrorMessage:    tx.ErrorMessage,
		AttemptNumber:   tx.AttemptNumber,
		AttemptedAt:     tx.AttemptedAt.Format(time.RFC3339),
	}
}

type ListTransactionsResponse struct {
	OrderID      string           `json:"order_id"`
	Transactions []TransactionDTO `json:"transactions"`
}
