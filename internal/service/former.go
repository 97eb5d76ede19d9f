package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/broker"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/identity"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"go.uber.org/zap"
)

// FormerService enriches created tasks with the recipient profile and
// forwards them to delivery.
type FormerService struct {
	notifications repository.NotificationRepository
	broker        TaskBroker
	credentials   CredentialSource
	profiles      ProfileSource
	cfg           BatchConfig
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewFormerService(
	notifications repository.NotificationRepository,
	taskBroker TaskBroker,
	credentials CredentialSource,
	profiles ProfileSource,
	cfg BatchConfig,
	logger *zap.Logger,
) (*FormerService, error) {
	if notifications == nil || taskBroker == nil {
		return nil, fmt.Errorf("notification repository and broker are required")
	}
	if credentials == nil || profiles == nil {
		return nil, fmt.Errorf("credential and profile sources are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FormerService{
		notifications: notifications,
		broker:        taskBroker,
		credentials:   credentials,
		profiles:      profiles,
		cfg:           cfg.withDefaults(),
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *FormerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// RunBatch drains one batch of created tasks and returns how many were acked.
func (s *FormerService) RunBatch(ctx context.Context) (int, error) {
	logger := observability.StageLogger(s.logger, ctx, stageFormer)
	start := s.now()

	acked, err := s.broker.DrainBatch(ctx, broker.CreatedRoute, s.cfg.BatchSize, s.cfg.PollTimeout,
		func(ctx context.Context, body []byte) error {
			return s.processMessage(ctx, logger, body)
		})
	s.metrics.ObserveBatchDuration(stageFormer, s.now().Sub(start))
	if err != nil {
		return acked, fmt.Errorf("enrichment batch stopped after %d tasks: %w", acked, err)
	}

	if acked > 0 {
		logger.Info("enrichment batch processed", zap.Int("acked", acked))
	}
	return acked, nil
}

func (s *FormerService) processMessage(ctx context.Context, logger *zap.Logger, body []byte) error {
	task, err := domain.DecodeTask(body)
	if err != nil {
		logger.Warn("dropping malformed task", zap.Error(err))
		s.metrics.IncStageMessage(stageFormer, "malformed")
		return nil
	}
	logger = logger.With(zap.String("notificationId", task.ID), zap.String("recipientId", task.RecipientID))

	n := task.Notification()

	profile, err := s.lookupProfile(ctx, task.RecipientID)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrProfileNotFound), errors.Is(err, identity.ErrProfileRejected):
		return s.markUnresolvable(ctx, logger, n, err.Error())
	default:
		s.metrics.IncStageMessage(stageFormer, "error")
		return fmt.Errorf("failed to resolve profile of user %s: %w", task.RecipientID, err)
	}

	n.RecipientName = profile.DisplayName()
	n.RecipientAddress = strings.TrimSpace(profile.Email)
	if n.RecipientAddress == "" && n.Channel == domain.ChannelEmail {
		return s.markUnresolvable(ctx, logger, n, "profile has no email address")
	}

	n.Status = domain.StatusEnriched
	n.LastSentAt = nil
	stored, err := s.store(ctx, logger, n)
	if err != nil {
		return fmt.Errorf("failed to store enriched notification: %w", err)
	}
	if !stored {
		return nil
	}

	if err := s.broker.Publish(ctx, broker.FormedRoute, n.Task()); err != nil {
		s.metrics.IncStageMessage(stageFormer, "error")
		return fmt.Errorf("failed to publish formed task: %w", err)
	}

	s.metrics.IncStageMessage(stageFormer, "enriched")
	logger.Debug("notification enriched")
	return nil
}

// lookupProfile retries once with a fresh token when the cached one is rejected.
func (s *FormerService) lookupProfile(ctx context.Context, userID string) (identity.Profile, error) {
	token, err := s.credentials.Token(ctx)
	if err != nil {
		return identity.Profile{}, err
	}

	profile, err := s.profiles.GetProfile(ctx, userID, token)
	if !errors.Is(err, identity.ErrUnauthorized) {
		return profile, err
	}

	if err := s.credentials.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate admin token", zap.Error(err))
	}
	token, err = s.credentials.Token(ctx)
	if err != nil {
		return identity.Profile{}, err
	}
	return s.profiles.GetProfile(ctx, userID, token)
}

func (s *FormerService) markUnresolvable(ctx context.Context, logger *zap.Logger, n *domain.Notification, reason string) error {
	n.Status = domain.StatusUnresolvable
	n.LastSentAt = nil
	stored, err := s.store(ctx, logger, n)
	if err != nil {
		return fmt.Errorf("failed to mark notification unresolvable: %w", err)
	}
	if !stored {
		return nil
	}

	s.metrics.IncStageMessage(stageFormer, "unresolvable")
	logger.Warn("recipient profile unresolvable", zap.String("reason", reason))
	return nil
}

// store writes the enrichment outcome only while the record has not left the
// enrichment stage. It reports false when the task must be dropped: the
// record is gone or a later stage already finalized it.
func (s *FormerService) store(ctx context.Context, logger *zap.Logger, n *domain.Notification) (bool, error) {
	err := s.notifications.UpdateIfStatus(ctx, n, domain.StatusCreated, domain.StatusEnriched)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn("notification deleted before enrichment, dropping task")
		s.metrics.IncStageMessage(stageFormer, "missing")
		return false, nil
	case errors.Is(err, domain.ErrConflict):
		logger.Info("notification already finalized, dropping redelivered task")
		s.metrics.IncStageMessage(stageFormer, "stale")
		return false, nil
	default:
		s.metrics.IncStageMessage(stageFormer, "error")
		return false, err
	}
}
