package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/broker"
	"github.com/kursadbilgin/notification-pipeline/internal/delivery"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/identity"
)

const (
	stageIntake = "intake"
	stageFormer = "former"
	stageSender = "sender"

	defaultBatchSize   = 1000
	defaultPollTimeout = time.Second
)

// TaskPublisher publishes a task to a broker route.
type TaskPublisher interface {
	Publish(ctx context.Context, route broker.Route, task any) error
}

// TaskDrainer consumes up to maxCount tasks from a route, acknowledging each
// one only after handler returns nil.
type TaskDrainer interface {
	DrainBatch(ctx context.Context, route broker.Route, maxCount int, pollTimeout time.Duration, handler broker.Handler) (int, error)
}

// TaskBroker is what the enrichment stage needs from the broker.
type TaskBroker interface {
	TaskPublisher
	TaskDrainer
}

// CredentialSource hands out the admin token used for profile lookups.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// ProfileSource resolves a user id into a profile.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID, token string) (identity.Profile, error)
}

// ChannelResolver picks the delivery channel for a notification type.
type ChannelResolver interface {
	Resolve(kind domain.Channel) delivery.Channel
}

// BatchConfig bounds one scheduled drain.
type BatchConfig struct {
	BatchSize   int
	PollTimeout time.Duration
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
	return c
}
