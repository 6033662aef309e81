package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"ticket-workflow/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher sends events to a durable queue through the default
// exchange. The channel argument of Publish becomes the routing header.
type RabbitPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	slog.Info("connected to rabbitmq", "queue", queue)
	return &RabbitPublisher{conn: conn, channel: channel, queue: queue}, nil
}

func (r *RabbitPublisher) Publish(ctx context.Context, channel string, event models.Event) error {
	msg, err := encodeDelivery(channel, event)
	if err != nil {
		return err
	}
	if err := r.channel.PublishWithContext(ctx,
		"",      // exchange
		r.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		msg,
	); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func encodeDelivery(channel string, event models.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(event.Type),
		Timestamp:    event.Timestamp,
		Headers:      amqp.Table{"channel": channel},
		Body:         body,
	}, nil
}

func (r *RabbitPublisher) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
