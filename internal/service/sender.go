package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-pipeline/internal/broker"
	"github.com/kursadbilgin/notification-pipeline/internal/delivery"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/ratelimit"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"go.uber.org/zap"
)

// SenderService delivers formed tasks through the channel registered for
// their type and records the outcome.
type SenderService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	drainer       TaskDrainer
	channels      ChannelResolver
	limiter       ratelimit.SendLimiter
	cfg           BatchConfig
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewSenderService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	drainer TaskDrainer,
	channels ChannelResolver,
	limiter ratelimit.SendLimiter,
	cfg BatchConfig,
	logger *zap.Logger,
) (*SenderService, error) {
	if notifications == nil || attempts == nil {
		return nil, fmt.Errorf("notification and attempt repositories are required")
	}
	if drainer == nil || channels == nil {
		return nil, fmt.Errorf("task drainer and channel resolver are required")
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SenderService{
		notifications: notifications,
		attempts:      attempts,
		drainer:       drainer,
		channels:      channels,
		limiter:       limiter,
		cfg:           cfg.withDefaults(),
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *SenderService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// RunBatch drains one batch of formed tasks and returns how many were acked.
func (s *SenderService) RunBatch(ctx context.Context) (int, error) {
	logger := observability.StageLogger(s.logger, ctx, stageSender)
	start := s.now()

	acked, err := s.drainer.DrainBatch(ctx, broker.FormedRoute, s.cfg.BatchSize, s.cfg.PollTimeout,
		func(ctx context.Context, body []byte) error {
			return s.processMessage(ctx, logger, body)
		})
	s.metrics.ObserveBatchDuration(stageSender, s.now().Sub(start))
	if err != nil {
		return acked, fmt.Errorf("delivery batch stopped after %d tasks: %w", acked, err)
	}

	if acked > 0 {
		logger.Info("delivery batch processed", zap.Int("acked", acked))
	}
	return acked, nil
}

func (s *SenderService) processMessage(ctx context.Context, logger *zap.Logger, body []byte) error {
	task, err := domain.DecodeTask(body)
	if err != nil {
		logger.Warn("dropping malformed task", zap.Error(err))
		s.metrics.IncStageMessage(stageSender, "malformed")
		return nil
	}

	n := task.Notification()
	channelName := n.Channel.String()
	logger = logger.With(zap.String("notificationId", n.ID), zap.String("type", channelName))

	current, err := s.notifications.GetByID(ctx, n.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn("notification deleted before delivery, dropping task")
		s.metrics.IncStageMessage(stageSender, "missing")
		return nil
	case err != nil:
		return fmt.Errorf("failed to load notification: %w", err)
	case current.Status.IsTerminal():
		logger.Info("notification already finalized, dropping redelivered task", zap.Stringer("status", current.Status))
		s.metrics.IncStageMessage(stageSender, "stale")
		return nil
	}

	if err := s.limiter.Wait(ctx, n.Channel); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	sendStart := s.now()
	sendErr := s.channels.Resolve(n.Channel).Deliver(ctx, *n)
	s.metrics.ObserveNotificationSendDuration(channelName, s.now().Sub(sendStart))

	if err := s.recordAttempt(ctx, n, sendErr); err != nil {
		logger.Error("failed to record delivery attempt", zap.Error(err))
	}

	if sendErr != nil && delivery.IsTransient(sendErr) {
		s.metrics.IncNotificationFailed(channelName, "transient")
		s.metrics.IncStageMessage(stageSender, "retry")
		return fmt.Errorf("transient delivery failure: %w", sendErr)
	}

	if sendErr == nil {
		sentAt := s.now().UTC()
		n.Status = domain.StatusSent
		n.LastSentAt = &sentAt
	} else {
		n.Status = domain.StatusFailed
		n.LastSentAt = nil
		logger.Warn("delivery rejected permanently", zap.Error(sendErr))
	}

	if err := s.notifications.UpdateIfStatus(ctx, n, domain.StatusEnriched); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			logger.Warn("notification deleted before delivery result was stored")
			s.metrics.IncStageMessage(stageSender, "missing")
			return nil
		case errors.Is(err, domain.ErrConflict):
			logger.Warn("notification finalized concurrently, delivery result not stored")
			s.metrics.IncStageMessage(stageSender, "stale")
			return nil
		}
		return fmt.Errorf("failed to store delivery result: %w", err)
	}

	if sendErr == nil {
		s.metrics.IncNotificationSent(channelName)
		s.metrics.IncStageMessage(stageSender, "sent")
		logger.Info("notification sent")
	} else {
		s.metrics.IncNotificationFailed(channelName, "permanent_error")
		s.metrics.IncStageMessage(stageSender, "failed")
	}
	return nil
}

func (s *SenderService) recordAttempt(ctx context.Context, n *domain.Notification, sendErr error) error {
	previous, err := s.attempts.CountByNotificationID(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}

	var attemptErr *string
	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value
	}

	attempt := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		Channel:        n.Channel,
		AttemptNumber:  previous + 1,
		Success:        sendErr == nil,
		Error:          attemptErr,
		CreatedAt:      s.now().UTC(),
	}
	return s.attempts.Create(ctx, attempt)
}
