// Package amqp publishes and consumes invoice change events over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"

	applog "faturas/internal/log"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	logger       *applog.Logger

	publishMu sync.Mutex
}

// NewClient dials url, retrying connection errors with exponential backoff
// for up to maxWait, then declares the exchange and queue.
func NewClient(ctx context.Context, url, exchangeName, queueName string, maxWait time.Duration, logger *applog.Logger) (*Client, error) {
	logger = logger.WithComponent(applog.ComponentAMQP)

	var conn *amqp091.Connection
	dial := func() error {
		c, err := amqp091.Dial(url)
		if err != nil {
			if !isConnectionError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "AMQP dial failed, retrying", applog.FieldError, err, "retry_in", wait)
	}
	if err := backoff.RetryNotify(dial, backoff.WithContext(dialBackoff(maxWait), ctx), notify); err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func dialBackoff(maxWait time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = maxWait
	return b
}

// isConnectionError reports errors worth retrying a dial for.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "connection closed", "eof", "i/o timeout", "no such host"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
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

	// Routing key is the queue name, as usual for a direct exchange.
	err = c.channel.QueueBind(
		c.queueName,
		c.queueName,
		c.exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishInvoicesChanged publishes a change event.
func (c *Client) PublishInvoicesChanged(ctx context.Context, msg *InvoicesChangedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.publishMu.Lock()
	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	c.publishMu.Unlock()
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.DebugContext(ctx, "Published invoices changed message",
		applog.FieldOwner, msg.OwnerID,
		"months", msg.Months,
		"source", msg.Source)

	return nil
}

// ConsumeInvoicesChanged delivers change events to handler until ctx is
// done. Undecodable messages are dropped; handler errors requeue.
func (c *Client) ConsumeInvoicesChanged(ctx context.Context, handler func(context.Context, *InvoicesChangedMessage) error) error {
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

	c.logger.InfoContext(ctx, "Started consuming change events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler func(context.Context, *InvoicesChangedMessage) error) {
	process(ctx, c.logger, delivery.Body, delivery, handler)
}

// process decodes one body and acks or nacks it.
func process(ctx context.Context, logger *applog.Logger, body []byte, ack acknowledger, handler func(context.Context, *InvoicesChangedMessage) error) {
	msg, err := InvoicesChangedMessageFromJSON(body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal message", applog.FieldError, err)
		ack.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to handle message",
			applog.FieldError, err,
			applog.FieldOwner, msg.OwnerID)
		ack.Nack(false, true)
		return
	}

	ack.Ack(false)
}

func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		errs = append(errs, c.channel.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}
