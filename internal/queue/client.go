// Package queue fans recurring-transaction work out over AMQP.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flow/internal/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher publishes due-template messages.
type Publisher interface {
	PublishRecurringDue(ctx context.Context, msg *RecurringDueMessage) error
}

// ErrPermanent marks a handler failure that must not be redelivered.
var ErrPermanent = errors.New("permanent failure")

// Client is a durable direct-exchange publisher and consumer. Publishing and
// consuming use separate channels so a consumer-side channel exception does
// not stall publishes.
type Client struct {
	conn         *amqp091.Connection
	publishCh    *amqp091.Channel
	consumeCh    *amqp091.Channel
	exchangeName string
	queueName    string
}

// NewClient dials url and declares the exchange, queue and binding.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	client := &Client{
		conn:         conn,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if client.publishCh, err = conn.Channel(); err != nil {
		client.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if client.consumeCh, err = conn.Channel(); err != nil {
		client.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	if err := c.publishCh.ExchangeDeclare(c.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := c.publishCh.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// Routing key is the queue name on a direct exchange.
	if err := c.publishCh.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	// One unacked message per consumer so slow materializations spread out.
	if err := c.consumeCh.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// PublishRecurringDue implements Publisher.
func (c *Client) PublishRecurringDue(ctx context.Context, msg *RecurringDueMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.publishCh.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    msg.TemplateID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	logger.Get().Debugw("Published recurring due message",
		"template_id", msg.TemplateID,
		"user_id", msg.UserID,
		"queue", c.queueName,
	)
	return nil
}

// Handler processes one decoded message.
type Handler func(ctx context.Context, msg *RecurringDueMessage) error

// ConsumeRecurringDue blocks, dispatching deliveries to handler until ctx is
// done or the channel closes.
func (c *Client) ConsumeRecurringDue(ctx context.Context, handler Handler) error {
	msgs, err := c.consumeCh.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	log := logger.Get()
	log.Infow("Started consuming recurring due messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			log.Infow("Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			settle(ctx, delivery, handler)
		}
	}
}

// acknowledger is the subset of amqp091.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(ctx context.Context, d amqp091.Delivery, handler Handler) {
	handle(ctx, d.Body, d.Redelivered, &d, handler)
}

// handle decodes body and settles it: malformed bodies and permanent errors
// are dropped, transient errors are requeued once and dropped on redelivery.
func handle(ctx context.Context, body []byte, redelivered bool, ack acknowledger, handler Handler) {
	log := logger.Get()

	msg, err := RecurringDueMessageFromJSON(body)
	if err != nil {
		log.Errorw("Failed to decode message", "error", err)
		_ = ack.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		requeue := !redelivered && !errors.Is(err, ErrPermanent)
		log.Errorw("Failed to handle message",
			"template_id", msg.TemplateID,
			"requeue", requeue,
			"error", err,
		)
		_ = ack.Nack(false, requeue)
		return
	}

	_ = ack.Ack(false)
}

// Close closes both channels and the connection.
func (c *Client) Close() error {
	for _, ch := range []*amqp091.Channel{c.consumeCh, c.publishCh} {
		if ch != nil {
			ch.Close()
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
