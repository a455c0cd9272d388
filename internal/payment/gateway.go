package payment

import (
	"context"

	"github.com/cuongbtq/schedulex/internal/domain"
)

// ChargeResult is the gateway's verdict on one attempt
type ChargeResult struct {
	Success   bool
	PaymentID string
	// GatewayOrderID is the gateway's reference for the order, stable across attempts
	GatewayOrderID string
	Method        string
	RawResponse   string
	FailureReason string
}

// Gateway charges an order. A returned error means the gateway could not be
// reached or misbehaved; a decline is reported through ChargeResult.
type Gateway interface {
	Charge(ctx context.Context, order *domain.Order, attempt int) (ChargeResult, error)
}
