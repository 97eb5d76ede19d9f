package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpConnection struct {
	conn *amqp.Connection
}

// DialRabbitMQ is the default Dialer backed by amqp091-go.
func DialRabbitMQ(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

// declareTopology declares the topic exchange and durable queue of a route and
// binds them with a catch-all key. All three calls are idempotent on the broker.
func declareTopology(ch Channel, route Route) error {
	if err := ch.ExchangeDeclare(
		route.Exchange,
		exchangeKind,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", route.Exchange, err)
	}

	if _, err := ch.QueueDeclare(
		route.Queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", route.Queue, err)
	}

	if err := ch.QueueBind(route.Queue, catchAllKey, route.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", route.Queue, err)
	}

	return nil
}
