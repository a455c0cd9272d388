package domain

import "time"

// PaymentStatus tracks the payment side of an order
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusSuccess    PaymentStatus = "SUCCESS"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
)

// PaymentStatuses lists every payment status
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusFailed,
	PaymentStatusSuccess,
	PaymentStatusRefunded,
	PaymentStatusCancelled,
}

// Valid reports whether s is a known payment status
func (s PaymentStatus) Valid() bool {
	for _, known := range PaymentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// OrderStatus tracks the fulfilment side of an order
type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "CREATED"
	OrderStatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderStatusPaymentFailed  OrderStatus = "PAYMENT_FAILED"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusRefunded       OrderStatus = "REFUNDED"
)

// DefaultOrderMaxRetries is the payment attempt budget of a new order
const DefaultOrderMaxRetries = 3

// Order is a purchase awaiting payment
type Order struct {
	ID                    int64         `db:"id"`
	OrderID               string        `db:"order_id"`
	CustomerID            string        `db:"customer_id"`
	CustomerName          string        `db:"customer_name"`
	CustomerEmail         string        `db:"customer_email"`
	CustomerPhone         string        `db:"customer_phone"`
	Amount                float64       `db:"amount"`
	OrderItems            string        `db:"order_items"`
	PaymentStatus         PaymentStatus `db:"payment_status"`
	OrderStatus           OrderStatus   `db:"order_status"`
	PaymentID             string        `db:"payment_id"`
	PaymentGatewayOrderID string        `db:"payment_gateway_order_id"`
	RetryCount            int           `db:"retry_count"`
	MaxRetries            int           `db:"max_retries"`
	NextRetryTime         *time.Time    `db:"next_retry_time"`
	LastRetryTime         *time.Time    `db:"last_retry_time"`
	FailureReason         string        `db:"failure_reason"`
	CreatedAt             time.Time     `db:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at"`
	PaidAt                *time.Time    `db:"paid_at"`
}

// CanRetry reports whether another payment attempt is allowed
func (o *Order) CanRetry() bool {
	return o.RetryCount < o.MaxRetries && o.PaymentStatus == PaymentStatusFailed
}

// IsRetryDue reports whether a retryable order has reached its next retry time
func (o *Order) IsRetryDue(now time.Time) bool {
	return o.CanRetry() && o.NextRetryTime != nil && !o.NextRetryTime.After(now)
}

// OrderStats holds order counts per payment status
type OrderStats struct {
	TotalOrders        int64 `json:"total_orders"`
	PendingPayments    int64 `json:"pending_payments"`
	ProcessingPayments int64 `json:"processing_payments"`
	FailedPayments     int64 `json:"failed_payments"`
	SuccessfulPayments int64 `json:"successful_payments"`
	RefundedPayments   int64 `json:"refunded_payments"`
	CancelledOrders    int64 `json:"cancelled_orders"`
}

// NewOrderStats builds stats from per-status counts so TotalOrders always equals their sum
func NewOrderStats(counts map[PaymentStatus]int64) OrderStats {
	stats := OrderStats{
		PendingPayments:    counts[PaymentStatusPending],
		ProcessingPayments: counts[PaymentStatusProcessing],
		FailedPayments:     counts[PaymentStatusFailed],
		SuccessfulPayments: counts[PaymentStatusSuccess],
		RefundedPayments:   counts[PaymentStatusRefunded],
		CancelledOrders:    counts[PaymentStatusCancelled],
	}
	stats.TotalOrders = stats.PendingPayments + stats.ProcessingPayments + stats.FailedPayments +
		stats.SuccessfulPayments + stats.RefundedPayments + stats.CancelledOrders
	return stats
}

// PaymentTransaction records one payment attempt
type PaymentTransaction struct {
	ID              int64         `db:"id"`
	OrderID         string        `db:"order_id"`
	PaymentID       string        `db:"payment_id"`
	Amount          float64       `db:"amount"`
	Status          PaymentStatus `db:"status"`
	PaymentMethod   string        `db:"payment_method"`
	GatewayResponse string        `db:"gateway_response"`
	ErrorMessage    string        `db:"error_message"`
	AttemptNumber   int           `db:"attempt_number"`
	AttemptedAt     time.Time     `db:"attempted_at"`
}
