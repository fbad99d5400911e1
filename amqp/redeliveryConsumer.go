package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	ddd "github.com/paulvitic/ddd-projector"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RedeliveryHandler retries the work described by a report.
type RedeliveryHandler func(ctx context.Context, report ddd.Undelivered) error

// RedeliveryConsumer reads undeliverable reports back from the queue and
// hands them to a handler. A report is acknowledged when the handler
// succeeds. A failing report is requeued once, then dropped.
type RedeliveryConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	handler RedeliveryHandler
	log     *ddd.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
}

func NewRedeliveryConsumer(ctx context.Context, config Configuration, handler RedeliveryHandler) (*RedeliveryConsumer, error) {
	conn, err := dial(ctx, config, 5)
	if err != nil {
		return nil, err
	}
	ch, err := openChannel(conn, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	return &RedeliveryConsumer{
		conn:    conn,
		channel: ch,
		queue:   config.Queue,
		handler: handler,
		log:     ddd.NewLogger().Named("redelivery"),
	}, nil
}

// OnStart begins consuming in the background.
func (c *RedeliveryConsumer) OnStart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	msgs, err := c.channel.Consume(
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.consume(ctx, msgs)

	c.log.Info("Waiting for reports on %s", c.queue)
	return nil
}

// OnDestroy stops consuming and closes the connection.
func (c *RedeliveryConsumer) OnDestroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	chErr := c.channel.Close()
	c.wg.Wait()
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return chErr
}

func (c *RedeliveryConsumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *RedeliveryConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *RedeliveryConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	var report ddd.Undelivered
	if err := json.Unmarshal(msg.Body, &report); err != nil {
		c.log.Error("Dropping malformed report: %v", err)
		_ = msg.Nack(false, false)
		return
	}
	if err := c.handler(ctx, report); err != nil {
		c.log.Warn("Redelivery of %d projections failed: %v", len(report.ProjectionIDs), err)
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}
	_ = msg.Ack(false)
}
