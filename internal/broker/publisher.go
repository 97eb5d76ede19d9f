package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publish declares the route topology and publishes task as a persistent JSON message.
func (p *Pool) Publish(ctx context.Context, route Route, task any) error {
	if p == nil {
		return fmt.Errorf("broker pool is not initialized")
	}
	if route.Exchange == "" || route.Queue == "" {
		return fmt.Errorf("exchange and queue names are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release(conn)

	ch, err := p.openChannel(conn, route)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		MessageId:    uuid.NewString(),
		Body:         payload,
	}

	if err := ch.PublishWithContext(ctx, route.Exchange, route.Queue, false, false, publishing); err != nil {
		return fmt.Errorf("%w: failed to publish to exchange %q: %w", ErrConnectivity, route.Exchange, err)
	}

	p.metrics.IncMessagePublished(route.Queue)
	p.logger.Debug("message published",
		zap.String("exchange", route.Exchange),
		zap.String("queue", route.Queue),
		zap.String("messageId", publishing.MessageId),
	)

	return nil
}
