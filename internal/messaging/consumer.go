package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventHandlerFunc processes one decoded chat event
type EventHandlerFunc func(ctx context.Context, event *ChatEvent) error

// EventConsumer delivers chat events from a durable queue bound to every
// routing key of the events exchange
type EventConsumer struct {
	rmq     *RabbitMQ
	queue   string
	handler EventHandlerFunc
}

func NewEventConsumer(rmq *RabbitMQ, queue string, handler EventHandlerFunc) *EventConsumer {
	return &EventConsumer{
		rmq:     rmq,
		queue:   queue,
		handler: handler,
	}
}

func (c *EventConsumer) Start(ctx context.Context) error {
	if _, err := c.rmq.channel.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", c.queue, err)
	}

	if err := c.rmq.channel.QueueBind(
		c.queue,        // queue name
		"#",            // routing key
		EventsExchange, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", c.queue, err)
	}

	if err := c.rmq.channel.Qos(32, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := c.rmq.channel.Consume(
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming chat events",
		slog.String("queue", c.queue),
		slog.String("exchange", EventsExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping event consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("event consumer channel closed")
					return
				}
				c.process(ctx, msg)
			}
		}
	}()

	return nil
}

// process acks handled deliveries and discards undecodable or failing ones
func (c *EventConsumer) process(ctx context.Context, msg amqp.Delivery) {
	var event ChatEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		slog.Error("error unmarshaling event",
			slog.String("error", err.Error()),
			slog.String("body", string(msg.Body)))
		if err := msg.Nack(false, false); err != nil {
			slog.Error("failed to nack event", slog.String("error", err.Error()))
		}
		return
	}

	if err := c.handler(ctx, &event); err != nil {
		slog.Error("error handling event",
			slog.String("error", err.Error()),
			slog.String("type", event.Type),
			slog.String("id", event.ID))
		if err := msg.Nack(false, false); err != nil {
			slog.Error("failed to nack event", slog.String("error", err.Error()))
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack event", slog.String("error", err.Error()))
	}
}
