package delivery

import (
	"context"
	"sync"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
)

// Channel transmits a fully enriched notification.
type Channel interface {
	Deliver(ctx context.Context, notification domain.Notification) error
}

// Registry maps notification types to channels. Unregistered types resolve
// to the fallback channel.
type Registry struct {
	mu       sync.RWMutex
	channels map[domain.Channel]Channel
	fallback Channel
}

func NewRegistry(fallback Channel) *Registry {
	return &Registry{
		channels: make(map[domain.Channel]Channel),
		fallback: fallback,
	}
}

func (r *Registry) Register(kind domain.Channel, channel Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[kind] = channel
}

func (r *Registry) Resolve(kind domain.Channel) Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if channel, ok := r.channels[kind]; ok {
		return channel
	}
	return r.fallback
}
