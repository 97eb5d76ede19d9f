package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultMaxConnections = 10
	defaultPollInterval   = 50 * time.Millisecond
)

// Pool is a bounded set of reusable broker connections. Connections are dialed
// lazily on first use; each publish or drain batch holds one for its duration.
type Pool struct {
	url          string
	dial         Dialer
	pollInterval time.Duration
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time

	slots chan struct{}

	mu     sync.Mutex
	idle   []Connection
	closed bool
}

type Option func(*Pool)

// WithMaxConnections bounds concurrent acquisitions. Values are clamped to [1, DefaultMaxConnections].
func WithMaxConnections(n int) Option {
	return func(p *Pool) {
		n = max(n, 1)
		n = min(n, DefaultMaxConnections)
		p.slots = make(chan struct{}, n)
	}
}

func WithDialer(dial Dialer) Option {
	return func(p *Pool) {
		if dial != nil {
			p.dial = dial
		}
	}
}

// WithPollInterval sets the wait between polls of an empty queue during a drain.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Pool) {
		p.metrics = metrics
	}
}

func NewPool(url string, opts ...Option) (*Pool, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	p := &Pool{
		url:          url,
		dial:         DialRabbitMQ,
		pollInterval: defaultPollInterval,
		logger:       zap.NewNop(),
		now:          time.Now,
		slots:        make(chan struct{}, DefaultMaxConnections),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Size returns the maximum number of connections the pool holds.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// Close closes idle connections. In-flight connections are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, conn := range idle {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping verifies a channel can be opened on a pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release(conn)

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: failed to open channel: %w", ErrConnectivity, err)
	}
	return ch.Close()
}

func (p *Pool) acquire(ctx context.Context) (Connection, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("broker acquire canceled: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	for len(p.idle) > 0 {
		last := len(p.idle) - 1
		conn := p.idle[last]
		p.idle = p.idle[:last]
		if !conn.IsClosed() {
			p.mu.Unlock()
			return conn, nil
		}
	}
	p.mu.Unlock()

	conn, err := p.dial(p.url)
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("%w: failed to dial rabbitmq: %w", ErrConnectivity, err)
	}

	return conn, nil
}

func (p *Pool) release(conn Connection) {
	defer func() { <-p.slots }()

	if conn == nil {
		return
	}

	p.mu.Lock()
	if p.closed || conn.IsClosed() {
		p.mu.Unlock()
		if err := conn.Close(); err != nil {
			p.logger.Debug("failed to close released broker connection", zap.Error(err))
		}
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// openChannel opens a channel and declares the route topology on it.
func (p *Pool) openChannel(conn Connection, route Route) (Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open channel: %w", ErrConnectivity, err)
	}

	if err := declareTopology(ch, route); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	return ch, nil
}
