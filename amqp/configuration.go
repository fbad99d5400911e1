package amqp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Configuration struct {
	Host        string `json:"host" env:"AMQP_HOST"`
	Port        int    `json:"port" env:"AMQP_PORT"`
	Username    string `json:"username" env:"AMQP_USERNAME"`
	Password    string `json:"password" env:"AMQP_PASSWORD"`
	VirtualHost string `json:"virtualHost" env:"AMQP_VIRTUAL_HOST"`
	Exchange    string `json:"exchange" env:"AMQP_EXCHANGE"`
	Queue       string `json:"queue" env:"AMQP_QUEUE"`
}

// Enabled reports whether a broker is configured at all.
func (c Configuration) Enabled() bool {
	return c.Host != "" && c.Queue != ""
}

func connectionUrl(settings Configuration) string {
	if settings.Username == "" {
		settings.Username = "guest"
	}
	if settings.Password == "" {
		settings.Password = "guest"
	}
	if settings.Host == "" {
		settings.Host = "localhost"
	}
	if settings.Port == 0 {
		settings.Port = 5672
	}
	return "amqp://" + url.PathEscape(settings.Username) + ":" +
		url.PathEscape(settings.Password) + "@" + settings.Host + ":" +
		strconv.Itoa(settings.Port) + "/" + url.PathEscape(settings.VirtualHost)
}

// dial connects to the broker, retrying with a growing pause until attempts
// run out or ctx is done.
func dial(ctx context.Context, settings Configuration, attempts int) (*amqp.Connection, error) {
	pause := 500 * time.Millisecond
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(connectionUrl(settings))
		if err == nil {
			return conn, nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
		pause *= 2
	}
	return nil, fmt.Errorf("connect to %s:%d after %d attempts: %w", settings.Host, settings.Port, attempts, err)
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,
		"fanout", // kind (fanout for distributing messages to all bound queues)
		true,     // durable (survive broker restarts)
		false,    // auto-delete (don't delete when no consumers are connected)
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable (survive broker restarts)
		false, // auto-delete (reports must wait for a consumer)
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func bindQueue(ch *amqp.Channel, exchange, queue string) error {
	return ch.QueueBind(
		queue,    // queue name
		"",       // routing key (empty for fanout exchange)
		exchange, // exchange name
		false,    // no-wait
		nil,      // arguments
	)
}

// openChannel opens a channel with the exchange and queue declared and bound.
func openChannel(conn *amqp.Connection, settings Configuration) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if settings.Exchange != "" {
		if err := declareExchange(ch, settings.Exchange); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", settings.Exchange, err)
		}
	}
	if _, err := declareQueue(ch, settings.Queue); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", settings.Queue, err)
	}
	if settings.Exchange != "" {
		if err := bindQueue(ch, settings.Exchange, settings.Queue); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("bind queue %s: %w", settings.Queue, err)
		}
	}
	return ch, nil
}
