package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuongbtq/schedulex/internal/domain"
)

// Outcome is one scripted gateway reply
type Outcome struct {
	Approve bool
	Reason  string
	Err     error
}

// ScriptedGateway replays outcomes in order and declines once the script
// runs out. It is deterministic and safe for concurrent use.
type ScriptedGateway struct {
	mu       sync.Mutex
	outcomes []Outcome
	calls    []int
}

func NewScriptedGateway(outcomes ...Outcome) *ScriptedGateway {
	return &ScriptedGateway{outcomes: outcomes}
}

func (g *ScriptedGateway) Charge(_ context.Context, order *domain.Order, attempt int) (ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, attempt)

	out := Outcome{Reason: "Transaction declined by bank"}
	if len(g.outcomes) > 0 {
		out = g.outcomes[0]
		g.outcomes = g.outcomes[1:]
	}

	if out.Err != nil {
		return ChargeResult{}, out.Err
	}

	gatewayOrderID := "GW_" + order.OrderID

	if out.Approve {
		return ChargeResult{
			Success:        true,
			PaymentID:      fmt.Sprintf("PAY_%s_%d", order.OrderID, attempt),
			GatewayOrderID: gatewayOrderID,
			Method:         "card",
			RawResponse:    `{"status":"captured","method":"card"}`,
		}, nil
	}

	raw, _ := json.Marshal(map[string]string{"status": "failed", "error": out.Reason})
	return ChargeResult{
		GatewayOrderID: gatewayOrderID,
		Method:         "card",
		RawResponse:    string(raw),
		FailureReason:  out.Reason,
	}, nil
}

// Calls returns the attempt numbers the gateway has been charged with
func (g *ScriptedGateway) Calls() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.calls...)
}
