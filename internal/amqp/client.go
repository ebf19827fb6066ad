// Package amqp publishes and consumes record change events over
// RabbitMQ. Publishing is best-effort from the service layer's point of
// view: a failed publish is logged and never fails the originating
// operation.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// errDeliveriesClosed marks the broker dropping the delivery channel
// mid-consume. It counts as a connection error so the retry loop
// reconnects instead of giving up.
var errDeliveriesClosed = errors.New("deliveries channel closed")

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	url          string
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	// On reconnect the old handles are dead but still open; drop them
	// before dialing so retry cycles do not leak connections.
	c.closeHandles()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setup(); err != nil {
		c.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishRecordAdded publishes a record_added event for one identifier.
func (c *Client) PublishRecordAdded(ctx context.Context, id int64) error {
	env, err := newEnvelope(KindRecordAdded, RecordAddedEvent{ID: id})
	if err != nil {
		return err
	}
	if err := c.publish(ctx, env); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published record_added event",
		"id", id,
		"event_id", env.EventID,
		"queue", c.queueName)
	return nil
}

// PublishRecordsDeleted publishes a records_deleted event for a set of
// identifiers.
func (c *Client) PublishRecordsDeleted(ctx context.Context, ids []int64) error {
	env, err := newEnvelope(KindRecordsDeleted, RecordsDeletedEvent{IDs: ids})
	if err != nil {
		return err
	}
	if err := c.publish(ctx, env); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published records_deleted event",
		"count", len(ids),
		"event_id", env.EventID,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, env *Envelope) error {
	body, err := env.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeEvents delivers events to the handlers until ctx is cancelled.
// Envelopes that cannot be decoded are rejected without requeue; handler
// failures are requeued so a transient backup outage loses nothing.
func (c *Client) ConsumeEvents(ctx context.Context,
	onAdded func(context.Context, *RecordAddedEvent) error,
	onDeleted func(context.Context, *RecordsDeletedEvent) error) error {

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming record events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			c.handleDelivery(ctx, delivery, onAdded, onDeleted)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery,
	onAdded func(context.Context, *RecordAddedEvent) error,
	onDeleted func(context.Context, *RecordsDeletedEvent) error) {

	env, err := EnvelopeFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to decode envelope", "error", err)
		delivery.Nack(false, false) // reject and don't requeue
		return
	}

	switch env.Kind {
	case KindRecordAdded:
		ev, err := env.RecordAdded()
		if err == nil {
			err = onAdded(ctx, ev)
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to handle record_added event",
				"error", err, "event_id", env.EventID)
			delivery.Nack(false, true) // requeue for retry
			return
		}
	case KindRecordsDeleted:
		ev, err := env.RecordsDeleted()
		if err == nil {
			err = onDeleted(ctx, ev)
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to handle records_deleted event",
				"error", err, "event_id", env.EventID)
			delivery.Nack(false, true)
			return
		}
	default:
		slog.WarnContext(ctx, "Unknown event kind", "kind", env.Kind, "event_id", env.EventID)
		delivery.Nack(false, false)
		return
	}

	delivery.Ack(false)
}

// ConsumeEventsWithRetry keeps consuming across broker outages,
// reconnecting with exponential backoff on connection-level failures.
// It returns on context cancellation or on a non-connection error.
func (c *Client) ConsumeEventsWithRetry(ctx context.Context,
	onAdded func(context.Context, *RecordAddedEvent) error,
	onDeleted func(context.Context, *RecordsDeletedEvent) error) error {

	attempt := 0
	for {
		err := c.ConsumeEvents(ctx, onAdded, onDeleted)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "Broker connection lost, reconnecting",
			"error", err, "attempt", attempt, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := c.connect(); err != nil {
			slog.ErrorContext(ctx, "Reconnect failed", "error", err, "attempt", attempt)
			continue
		}
		attempt = 0
	}
}

func (c *Client) Close() error {
	return c.closeHandles()
}

// closeHandles tears down the channel and connection, leaving the
// client ready for a fresh connect. Safe to call with nothing open.
func (c *Client) closeHandles() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// exponentialBackoff returns the wait before reconnect attempt n,
// doubling from one second and capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 4 {
		return 30 * time.Second
	}
	return time.Second << attempt
}

// isConnectionError reports whether an error looks like a broken broker
// connection worth a reconnect, as opposed to a protocol-level failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errDeliveriesClosed) {
		return true
	}
	msg := err.Error()
	for _, hint := range []string{"connection refused", "connection closed", "closed network connection", "EOF", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
