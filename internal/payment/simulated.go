package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/schedulex/internal/domain"
)

var declineReasons = []string{
	"Insufficient funds in account",
	"Card expired",
	"Transaction declined by bank",
	"Invalid CVV",
	"Card limit exceeded",
	"Payment gateway timeout",
	"3D Secure authentication failed",
	"Card blocked by bank",
}

// SimulatedConfig tunes the simulated gateway
type SimulatedConfig struct {
	Latency          time.Duration
	SuccessRate      float64 // first attempt, 0..1
	RetrySuccessRate float64 // later attempts, 0..1
	FailFirstAttempt bool
}

// SimulatedGateway stands in for a real card processor
type SimulatedGateway struct {
	cfg     SimulatedConfig
	counter atomic.Int64
	rand    func() float64
	pick    func(n int) int
}

func NewSimulatedGateway(cfg SimulatedConfig) *SimulatedGateway {
	return &SimulatedGateway{
		cfg:  cfg,
		rand: rand.Float64,
		pick: rand.IntN,
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, order *domain.Order, attempt int) (ChargeResult, error) {
	if g.cfg.Latency > 0 {
		select {
		case <-ctx.Done():
			return ChargeResult{}, fmt.Errorf("gateway call aborted: %w", ctx.Err())
		case <-time.After(g.cfg.Latency):
		}
	}

	gatewayOrderID := order.PaymentGatewayOrderID
	if gatewayOrderID == "" {
		gatewayOrderID = "GW_" + order.OrderID
	}

	if g.approve(attempt) {
		raw, _ := json.Marshal(map[string]string{"status": "captured", "method": "card", "gateway_order_id": gatewayOrderID})
		return ChargeResult{
			Success:        true,
			PaymentID:      fmt.Sprintf("PAY_%d_%d", time.Now().UnixMilli(), g.counter.Add(1)),
			GatewayOrderID: gatewayOrderID,
			Method:         "card",
			RawResponse:    string(raw),
		}, nil
	}

	reason := declineReasons[g.pick(len(declineReasons))]
	raw, _ := json.Marshal(map[string]string{"status": "failed", "error": reason, "gateway_order_id": gatewayOrderID})
	return ChargeResult{
		GatewayOrderID: gatewayOrderID,
		Method:         "card",
		RawResponse:    string(raw),
		FailureReason:  reason,
	}, nil
}

func (g *SimulatedGateway) approve(attempt int) bool {
	if attempt <= 1 {
		if g.cfg.FailFirstAttempt {
			return false
		}
		return g.rand() < g.cfg.SuccessRate
	}
	return g.rand() < g.cfg.RetrySuccessRate
}
