package broker

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrConnectivity marks broker dial/channel/declare failures. Callers retry on the next run.
	ErrConnectivity = errors.New("broker connectivity error")
	// ErrHandler marks a drain aborted because the message handler failed.
	ErrHandler    = errors.New("message handler failed")
	ErrPoolClosed = errors.New("broker pool is closed")
)

// Route names a topic exchange and the durable queue bound to it.
type Route struct {
	Exchange string
	Queue    string
}

var (
	CreatedRoute = Route{Exchange: "topic_created", Queue: "created_tasks"}
	FormedRoute  = Route{Exchange: "topic_formed", Queue: "formed_tasks"}
)

const (
	exchangeKind = "topic"
	catchAllKey  = "#"
)

// Handler processes one message body. A nil return acknowledges the message.
type Handler func(ctx context.Context, body []byte) error

// Channel is the subset of *amqp.Channel used by the pool.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Close() error
}

// Connection is the subset of *amqp.Connection used by the pool.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a new broker connection.
type Dialer func(url string) (Connection, error)
