package ratelimit

import (
	"context"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
)

// SendLimiter caps delivery throughput per channel across all sender workers.
type SendLimiter interface {
	Allow(ctx context.Context, channel domain.Channel) (bool, error)
	Wait(ctx context.Context, channel domain.Channel) error
}

// Unlimited never throttles.
type Unlimited struct{}

var _ SendLimiter = Unlimited{}

func (Unlimited) Allow(context.Context, domain.Channel) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _ domain.Channel) error { return ctx.Err() }

// Limits holds the per-second send cap of each channel. Channels without a
// positive entry in PerChannel fall back to Default.
type Limits struct {
	Default    int
	PerChannel map[domain.Channel]int
}

func (l Limits) For(channel domain.Channel) int {
	if limit := l.PerChannel[channel]; limit > 0 {
		return limit
	}
	return l.Default
}
