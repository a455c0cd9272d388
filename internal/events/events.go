// Package events publishes domain events about orders, payments and jobs.
// Publishing is best effort: failures are logged and never returned to the
// workflow that raised the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type is an event type. It doubles as the routing key on the exchange.
type Type string

const (
	OrderCreated          Type = "order.created"
	OrderCancelled        Type = "order.cancelled"
	PaymentSucceeded      Type = "payment.succeeded"
	PaymentFailed         Type = "payment.failed"
	PaymentRetryScheduled Type = "payment.retry_scheduled"
	JobCompleted          Type = "job.completed"
	JobFailed             Type = "job.failed"
	JobRetrying           Type = "job.retrying"
)

// Event is the envelope sent to subscribers
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// New builds an event with a fresh id
func New(t Type, occurredAt time.Time, data map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: occurredAt,
		Data:       data,
	}
}

// Publisher delivers events. Implementations must not block the caller for
// longer than their own retry budget and must not return errors.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
