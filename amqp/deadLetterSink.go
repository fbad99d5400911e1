package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ddd "github.com/paulvitic/ddd-projector"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterSink publishes undeliverable work reports as persistent JSON
// messages, to the exchange when one is configured or straight to the queue.
type DeadLetterSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	log      *ddd.Logger
	mu       sync.Mutex
}

func NewDeadLetterSink(ctx context.Context, config Configuration) (*DeadLetterSink, error) {
	conn, err := dial(ctx, config, 5)
	if err != nil {
		return nil, err
	}
	ch, err := openChannel(conn, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DeadLetterSink{
		conn:     conn,
		channel:  ch,
		exchange: config.Exchange,
		queue:    config.Queue,
		log:      ddd.NewLogger().Named("dead letters"),
	}, nil
}

func (s *DeadLetterSink) Undeliverable(ctx context.Context, report ddd.Undelivered) error {
	msg, err := publishing(report)
	if err != nil {
		return err
	}

	routingKey := s.queue
	if s.exchange != "" {
		routingKey = ""
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.PublishWithContext(ctx,
		s.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	); err != nil {
		return fmt.Errorf("publish undeliverable report: %w", err)
	}
	s.log.Info("Reported %s: %s", report.Source, report.Message)
	return nil
}

func (s *DeadLetterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.Close(); err != nil {
		_ = s.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	return s.conn.Close()
}

func publishing(report ddd.Undelivered) (amqp.Publishing, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode undeliverable report: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    report.ReportedAt,
		Type:         report.Source,
		Body:         body,
	}, nil
}
