package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/clock"
	"go.uber.org/zap"
)

// DrainBatch pulls up to maxCount messages from the route's queue, one at a time.
// Each message is acknowledged only after handler returns nil. A handler error
// requeues the message and aborts the batch. The batch stops early once the
// queue has stayed empty for pollTimeout. It returns the number of acknowledged messages.
func (p *Pool) DrainBatch(
	ctx context.Context,
	route Route,
	maxCount int,
	pollTimeout time.Duration,
	handler Handler,
) (int, error) {
	if p == nil {
		return 0, fmt.Errorf("broker pool is not initialized")
	}
	if handler == nil {
		return 0, fmt.Errorf("message handler is required")
	}
	if maxCount <= 0 {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := p.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer p.release(conn)

	ch, err := p.openChannel(conn, route)
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	acked := 0
	deadline := p.now().Add(pollTimeout)
	for acked < maxCount {
		if err := ctx.Err(); err != nil {
			return acked, err
		}

		delivery, ok, err := ch.Get(route.Queue, false)
		if err != nil {
			return acked, fmt.Errorf("%w: failed to get from queue %q: %w", ErrConnectivity, route.Queue, err)
		}
		if !ok {
			if !p.now().Before(deadline) {
				return acked, nil
			}
			if err := clock.Sleep(ctx, p.pollInterval); err != nil {
				return acked, err
			}
			continue
		}

		if err := handler(ctx, delivery.Body); err != nil {
			if nackErr := delivery.Nack(false, true); nackErr != nil {
				p.logger.Error("failed to requeue message",
					zap.String("queue", route.Queue),
					zap.Error(nackErr),
				)
			}
			p.metrics.IncMessageRequeued(route.Queue)
			return acked, fmt.Errorf("%w: queue %q: %w", ErrHandler, route.Queue, err)
		}

		if err := delivery.Ack(false); err != nil {
			return acked, fmt.Errorf("%w: failed to ack message on queue %q: %w", ErrConnectivity, route.Queue, err)
		}
		acked++
		p.metrics.IncMessageAcked(route.Queue)
		deadline = p.now().Add(pollTimeout)
	}

	return acked, nil
}
