package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the logger. Used when RabbitMQ is disabled.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) {
	attrs := []any{
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
	}
	for k, v := range event.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	p.logger.Info("Event published", attrs...)
}
