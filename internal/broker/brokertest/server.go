// Package brokertest provides an in-memory topic broker that satisfies the
// broker.Connection contract, for tests that exercise publish and drain flows.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kursadbilgin/notification-pipeline/internal/broker"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrConnectionClosed = errors.New("brokertest: connection closed")

// Message is a stored broker message.
type Message struct {
	Exchange   string
	RoutingKey string
	Publishing amqp.Publishing
}

type exchange struct {
	kind    string
	durable bool
}

type queue struct {
	durable  bool
	messages []Message
}

type binding struct {
	queue string
	key   string
}

// Server is an in-memory broker. Unacknowledged messages return to the head of
// their queue when nacked with requeue or when their channel closes.
type Server struct {
	mu        sync.Mutex
	exchanges map[string]exchange
	queues    map[string]*queue
	bindings  map[string][]binding
	dials     int
	dialErr   error
	conns     []*conn
}

func NewServer() *Server {
	return &Server{
		exchanges: make(map[string]exchange),
		queues:    make(map[string]*queue),
		bindings:  make(map[string][]binding),
	}
}

// Dial satisfies broker.Dialer.
func (s *Server) Dial(string) (broker.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dialErr != nil {
		return nil, s.dialErr
	}
	s.dials++
	c := &conn{server: s}
	s.conns = append(s.conns, c)
	return c, nil
}

// FailDials makes subsequent dials return err. A nil err restores dialing.
func (s *Server) FailDials(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErr = err
}

// Dials returns the number of successful dials.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// CloseConnections simulates the broker dropping every open connection.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Messages returns a snapshot of ready messages on a queue.
func (s *Server) Messages(queueName string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueName]
	if !ok {
		return nil
	}
	out := make([]Message, len(q.messages))
	copy(out, q.messages)
	return out
}

// QueueNames returns declared queue names.
func (s *Server) QueueNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	return names
}

// ExchangeKind returns the kind of a declared exchange.
func (s *Server) ExchangeKind(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exchanges[name]
	return ex.kind, ok
}

// Bindings returns the number of bindings from an exchange.
func (s *Server) Bindings(exchangeName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bindings[exchangeName])
}

func (s *Server) declareExchange(name, kind string, durable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.exchanges[name]; ok {
		if existing.kind != kind || existing.durable != durable {
			return &amqp.Error{Code: amqp.PreconditionFailed, Reason: fmt.Sprintf("inequivalent arg for exchange %q", name)}
		}
		return nil
	}
	s.exchanges[name] = exchange{kind: kind, durable: durable}
	return nil
}

func (s *Server) declareQueue(name string, durable bool) (amqp.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[name]
	if ok {
		if q.durable != durable {
			return amqp.Queue{}, &amqp.Error{Code: amqp.PreconditionFailed, Reason: fmt.Sprintf("inequivalent arg 'durable' for queue %q", name)}
		}
	} else {
		q = &queue{durable: durable}
		s.queues[name] = q
	}
	return amqp.Queue{Name: name, Messages: len(q.messages)}, nil
}

func (s *Server) bind(queueName, key, exchangeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exchanges[exchangeName]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no exchange %q", exchangeName)}
	}
	if _, ok := s.queues[queueName]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no queue %q", queueName)}
	}
	for _, b := range s.bindings[exchangeName] {
		if b.queue == queueName && b.key == key {
			return nil
		}
	}
	s.bindings[exchangeName] = append(s.bindings[exchangeName], binding{queue: queueName, key: key})
	return nil
}

func (s *Server) publish(exchangeName, key string, msg amqp.Publishing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exchanges[exchangeName]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no exchange %q", exchangeName)}
	}
	for _, b := range s.bindings[exchangeName] {
		if b.key != "#" && b.key != key {
			continue
		}
		q := s.queues[b.queue]
		q.messages = append(q.messages, Message{Exchange: exchangeName, RoutingKey: key, Publishing: msg})
	}
	return nil
}

func (s *Server) get(queueName string) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueName]
	if !ok {
		return Message{}, false, &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("no queue %q", queueName)}
	}
	if len(q.messages) == 0 {
		return Message{}, false, nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, true, nil
}

func (s *Server) requeue(queueName string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queueName]
	if !ok {
		return
	}
	q.messages = append([]Message{msg}, q.messages...)
}

type conn struct {
	server *Server

	mu     sync.Mutex
	closed bool
	chans  []*channel
}

func (c *conn) Channel() (broker.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	ch := &channel{server: c.server, conn: c, unacked: make(map[uint64]pending)}
	c.chans = append(c.chans, ch)
	return ch, nil
}

func (c *conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	chans := c.chans
	c.chans = nil
	c.mu.Unlock()

	for _, ch := range chans {
		_ = ch.Close()
	}
	return nil
}

type pending struct {
	queue string
	msg   Message
}

type channel struct {
	server *Server
	conn   *conn

	mu      sync.Mutex
	closed  bool
	nextTag uint64
	unacked map[uint64]pending
}

var _ broker.Channel = (*channel)(nil)
var _ amqp.Acknowledger = (*channel)(nil)

func (ch *channel) check() error {
	if ch.conn.IsClosed() {
		return ErrConnectionClosed
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	return nil
}

func (ch *channel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if err := ch.check(); err != nil {
		return err
	}
	return ch.server.declareExchange(name, kind, durable)
}

func (ch *channel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if err := ch.check(); err != nil {
		return amqp.Queue{}, err
	}
	return ch.server.declareQueue(name, durable)
}

func (ch *channel) QueueBind(name, key, exchangeName string, _ bool, _ amqp.Table) error {
	if err := ch.check(); err != nil {
		return err
	}
	return ch.server.bind(name, key, exchangeName)
}

func (ch *channel) PublishWithContext(ctx context.Context, exchangeName, key string, _, _ bool, msg amqp.Publishing) error {
	if err := ch.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ch.server.publish(exchangeName, key, msg)
}

func (ch *channel) Get(queueName string, autoAck bool) (amqp.Delivery, bool, error) {
	if err := ch.check(); err != nil {
		return amqp.Delivery{}, false, err
	}

	msg, ok, err := ch.server.get(queueName)
	if err != nil || !ok {
		return amqp.Delivery{}, ok, err
	}

	ch.mu.Lock()
	ch.nextTag++
	tag := ch.nextTag
	if !autoAck {
		ch.unacked[tag] = pending{queue: queueName, msg: msg}
	}
	ch.mu.Unlock()

	return amqp.Delivery{
		Acknowledger: ch,
		DeliveryTag:  tag,
		Exchange:     msg.Exchange,
		RoutingKey:   msg.RoutingKey,
		ContentType:  msg.Publishing.ContentType,
		DeliveryMode: msg.Publishing.DeliveryMode,
		MessageId:    msg.Publishing.MessageId,
		Timestamp:    msg.Publishing.Timestamp,
		Body:         msg.Publishing.Body,
	}, true, nil
}

func (ch *channel) Ack(tag uint64, _ bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if _, ok := ch.unacked[tag]; !ok {
		return fmt.Errorf("brokertest: unknown delivery tag %d", tag)
	}
	delete(ch.unacked, tag)
	return nil
}

func (ch *channel) Nack(tag uint64, _ bool, requeue bool) error {
	ch.mu.Lock()
	p, ok := ch.unacked[tag]
	delete(ch.unacked, tag)
	ch.mu.Unlock()

	if !ok {
		return fmt.Errorf("brokertest: unknown delivery tag %d", tag)
	}
	if requeue {
		ch.server.requeue(p.queue, p.msg)
	}
	return nil
}

func (ch *channel) Reject(tag uint64, requeue bool) error {
	return ch.Nack(tag, false, requeue)
}

// Close returns unacknowledged messages to their queues.
func (ch *channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	unacked := ch.unacked
	ch.unacked = make(map[uint64]pending)
	ch.mu.Unlock()

	for _, p := range unacked {
		ch.server.requeue(p.queue, p.msg)
	}
	return nil
}
