package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Broker is the part of the RabbitMQ client the publisher needs
type Broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// RabbitPublisher sends events to a topic exchange with the event type as routing key
type RabbitPublisher struct {
	broker Broker
	logger *slog.Logger
}

func NewRabbitPublisher(broker Broker, logger *slog.Logger) *RabbitPublisher {
	return &RabbitPublisher{
		broker: broker,
		logger: logger,
	}
}

func (p *RabbitPublisher) Publish(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event",
			slog.String("event_type", string(event.Type)),
			slog.Any("error", err),
		)
		return
	}

	if err := p.broker.PublishWithRetry(ctx, string(event.Type), body, "application/json"); err != nil {
		p.logger.Error("Failed to publish event",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.Any("error", err),
		)
	}
}
